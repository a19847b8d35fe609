// Package extractor performs single extraction attempts against the
// upstream player API. One call of Extract is one attempt: it speaks as one
// client persona, through one egress proxy, with at most one credential
// bundle, and surfaces upstream failure text verbatim so the caller can
// classify it.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"media-acquire-go/pkg/auth"
	"media-acquire-go/pkg/httpclient"
	"media-acquire-go/pkg/interfaces"
	"media-acquire-go/pkg/logging"
	"media-acquire-go/pkg/strategy"
	"media-acquire-go/pkg/types"
)

const defaultPlayerHost = "https://www.youtube.com"

// PlayerClient implements the extraction attempt against the player API.
type PlayerClient struct {
	client  *httpclient.Client
	log     *logging.Logger
	baseURL string
}

// Option configures a PlayerClient.
type Option func(*PlayerClient)

// WithBaseURL overrides the upstream host, used by tests.
func WithBaseURL(u string) Option {
	return func(p *PlayerClient) { p.baseURL = strings.TrimSuffix(u, "/") }
}

// NewPlayerClient creates a player API client.
func NewPlayerClient(client *httpclient.Client, log *logging.Logger, opts ...Option) *PlayerClient {
	p := &PlayerClient{
		client:  client,
		log:     log.WithComponent("extractor"),
		baseURL: defaultPlayerHost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type playerRequestClient struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	UserAgent     string `json:"userAgent,omitempty"`
	VisitorData   string `json:"visitorData,omitempty"`
}

type playerRequest struct {
	VideoID string `json:"videoId"`
	Context struct {
		Client playerRequestClient `json:"client"`
	} `json:"context"`
	ServiceIntegrityDimensions *struct {
		POToken string `json:"poToken"`
	} `json:"serviceIntegrityDimensions,omitempty"`
}

type playerFormat struct {
	Itag            int     `json:"itag"`
	URL             string  `json:"url"`
	SignatureCipher string  `json:"signatureCipher"`
	MimeType        string  `json:"mimeType"`
	Bitrate         int     `json:"bitrate"`
	AverageBitrate  int     `json:"averageBitrate"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	ContentLength   string  `json:"contentLength"`
	QualityLabel    string  `json:"qualityLabel"`
	AudioQuality    string  `json:"audioQuality"`
}

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		VideoID       string `json:"videoId"`
		Title         string `json:"title"`
		LengthSeconds string `json:"lengthSeconds"`
		Author        string `json:"author"`
		ViewCount     string `json:"viewCount"`
		ShortDesc     string `json:"shortDescription"`
		Thumbnail     struct {
			Thumbnails []struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
	StreamingData struct {
		Formats         []playerFormat `json:"formats"`
		AdaptiveFormats []playerFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

// Extract issues one player request and maps the response to renditions.
func (p *PlayerClient) Extract(ctx context.Context, videoID string, strat strategy.Strategy, proxyURL string, bundle *auth.Bundle) (*types.Extraction, error) {
	reqBody := playerRequest{VideoID: videoID}
	reqBody.Context.Client = playerRequestClient{
		ClientName:    strat.Profile.Name,
		ClientVersion: strat.Profile.Version,
		UserAgent:     strat.Profile.UserAgent,
	}

	useTokens := strat.TokenEligible && bundle != nil
	if useTokens {
		reqBody.Context.Client.VisitorData = bundle.VisitorID
		if bundle.POToken != "" {
			reqBody.ServiceIntegrityDimensions = &struct {
				POToken string `json:"poToken"`
			}{POToken: bundle.POToken}
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal player request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/youtubei/v1/player?key=%s&prettyPrint=false", p.baseURL, strat.Profile.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create player request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", strat.Profile.UserAgent)
	req.Header.Set("X-Youtube-Client-Name", strconv.Itoa(strat.Profile.ContextNameID))
	req.Header.Set("X-Youtube-Client-Version", strat.Profile.Version)
	if useTokens {
		for _, c := range bundle.Cookies {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	resp, err := p.client.For(proxyURL).Do(req)
	if err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("player request failed: HTTP %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(tail)))
	}

	var pr playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}

	// Non-OK playability carries the upstream block text; surface it
	// verbatim for classification.
	if status := pr.PlayabilityStatus.Status; status != "" && status != "OK" {
		return nil, fmt.Errorf("playability %s: %s", status, pr.PlayabilityStatus.Reason)
	}

	total := len(pr.StreamingData.Formats) + len(pr.StreamingData.AdaptiveFormats)
	if total == 0 {
		return nil, fmt.Errorf("failed to extract any player response formats for %s", videoID)
	}

	renditions := make([]types.Rendition, 0, total)
	for _, f := range pr.StreamingData.Formats {
		renditions = append(renditions, p.toRendition(f, bundle, useTokens))
	}
	for _, f := range pr.StreamingData.AdaptiveFormats {
		renditions = append(renditions, p.toRendition(f, bundle, useTokens))
	}

	ext := &types.Extraction{
		Info:       videoInfoFromDetails(pr),
		Renditions: renditions,
	}
	p.log.Debug("extraction attempt succeeded",
		"video_id", videoID,
		"strategy", strat.Label,
		"renditions", len(renditions),
	)
	return ext, nil
}

func (p *PlayerClient) toRendition(f playerFormat, bundle *auth.Bundle, useTokens bool) types.Rendition {
	container, vcodec, acodec := parseMimeType(f.MimeType)

	// Cipher-protected formats have no direct URL; they stay present in
	// metadata as unresolved and the selector filters them out.
	streamURL := f.URL
	if useTokens && streamURL != "" && bundle.POToken != "" {
		streamURL = injectPOToken(streamURL, bundle.POToken)
	}

	size, _ := strconv.ParseInt(f.ContentLength, 10, 64)
	bitrate := float64(f.Bitrate) / 1000
	if f.AverageBitrate > 0 {
		bitrate = float64(f.AverageBitrate) / 1000
	}

	return types.Rendition{
		ID:         strconv.Itoa(f.Itag),
		URL:        streamURL,
		Container:  container,
		Height:     f.Height,
		Width:      f.Width,
		FPS:        f.FPS,
		VideoCodec: vcodec,
		AudioCodec: acodec,
		Filesize:   size,
		Bitrate:    bitrate,
		Transport:  types.TransportHTTPS,
	}
}

func videoInfoFromDetails(pr playerResponse) types.VideoInfo {
	d := pr.VideoDetails
	duration, _ := strconv.Atoi(d.LengthSeconds)
	views, _ := strconv.ParseInt(d.ViewCount, 10, 64)
	thumb := ""
	if n := len(d.Thumbnail.Thumbnails); n > 0 {
		thumb = d.Thumbnail.Thumbnails[n-1].URL
	}
	return types.VideoInfo{
		ID:          d.VideoID,
		Title:       d.Title,
		Duration:    duration,
		Thumbnail:   thumb,
		Description: d.ShortDesc,
		Uploader:    d.Author,
		ViewCount:   views,
	}
}

// parseMimeType splits `video/mp4; codecs="avc1.64002A, mp4a.40.2"` into
// container and codec identifiers.
func parseMimeType(mime string) (container, vcodec, acodec string) {
	base, params, _ := strings.Cut(mime, ";")
	kind, subtype, _ := strings.Cut(strings.TrimSpace(base), "/")

	container = subtype
	if kind == "audio" && subtype == "mp4" {
		container = "m4a"
	}

	var codecs []string
	if idx := strings.Index(params, "codecs="); idx >= 0 {
		list := strings.Trim(strings.TrimSpace(params[idx+len("codecs="):]), `"`)
		for _, c := range strings.Split(list, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codecs = append(codecs, c)
			}
		}
	}

	switch kind {
	case "video":
		if len(codecs) > 0 {
			vcodec = codecs[0]
		}
		if len(codecs) > 1 {
			acodec = codecs[1]
		}
	case "audio":
		if len(codecs) > 0 {
			acodec = codecs[0]
		}
	}
	return container, vcodec, acodec
}

// injectPOToken appends the proof-of-origin token as a query parameter on a
// stream URL. URLs that already carry one are left untouched.
func injectPOToken(rawURL, token string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get("pot") != "" {
		return rawURL
	}
	q.Set("pot", token)
	u.RawQuery = q.Encode()
	return u.String()
}

var _ interfaces.Extractor = (*PlayerClient)(nil)
