// Package types defines core domain types used throughout the application.
package types

import "strings"

// TransportKind identifies how a rendition is delivered.
type TransportKind string

const (
	TransportHTTPS TransportKind = "https"
	TransportHLS   TransportKind = "hls"
	TransportDASH  TransportKind = "dash"
)

// Rendition is one concrete encoded video or audio stream offered upstream.
// A rendition with an empty URL is present in metadata but not resolvable.
type Rendition struct {
	ID         string        `json:"id"`
	URL        string        `json:"url,omitempty"`
	Container  string        `json:"container"` // mp4, webm, m4a, ...
	Height     int           `json:"height,omitempty"`
	Width      int           `json:"width,omitempty"`
	FPS        float64       `json:"fps,omitempty"`
	VideoCodec string        `json:"video_codec,omitempty"` // empty when no video track
	AudioCodec string        `json:"audio_codec,omitempty"` // empty when no audio track
	Filesize   int64         `json:"filesize,omitempty"`
	Bitrate    float64       `json:"bitrate,omitempty"` // kbps, total
	Transport  TransportKind `json:"transport"`
}

// IsVideo reports whether the rendition carries a video track.
func (r Rendition) IsVideo() bool { return r.VideoCodec != "" && r.VideoCodec != "none" }

// IsAudio reports whether the rendition carries an audio track.
func (r Rendition) IsAudio() bool { return r.AudioCodec != "" && r.AudioCodec != "none" }

// IsVideoOnly reports a video track without audio.
func (r Rendition) IsVideoOnly() bool { return r.IsVideo() && !r.IsAudio() }

// IsAudioOnly reports an audio track without video.
func (r Rendition) IsAudioOnly() bool { return r.IsAudio() && !r.IsVideo() }

// HasBoth reports a muxed rendition carrying both tracks.
func (r Rendition) HasBoth() bool { return r.IsVideo() && r.IsAudio() }

// IsDirectDownload reports a plain HTTPS URL that can be fetched as a file,
// as opposed to an HLS/DASH manifest.
func (r Rendition) IsDirectDownload() bool {
	return r.Transport == TransportHTTPS && r.URL != ""
}

// IsBroadlyCompatible reports an mp4/m4a container (H.264/AAC family),
// preferred over webm/opus when quality is otherwise equal.
func (r Rendition) IsBroadlyCompatible() bool {
	switch strings.ToLower(r.Container) {
	case "mp4", "m4a":
		return true
	}
	return strings.HasPrefix(strings.ToLower(r.VideoCodec), "avc")
}

// VideoInfo carries upstream metadata for a resolved video.
type VideoInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Duration    int    `json:"duration"` // seconds
	Thumbnail   string `json:"thumbnail,omitempty"`
	Description string `json:"description,omitempty"`
	Uploader    string `json:"uploader,omitempty"`
	ViewCount   int64  `json:"view_count,omitempty"`
}

// Extraction is the raw result of one successful extraction attempt.
type Extraction struct {
	Info       VideoInfo
	Renditions []Rendition
}

// ResolvedMedia is the final selection for a requested quality.
// NeedsMerge true means Video and Audio are separate streams that must be
// merged into one container; false means Video alone supplies both tracks
// (or the target was audio-only and Audio alone is the result).
type ResolvedMedia struct {
	Video      *Rendition `json:"video,omitempty"`
	Audio      *Rendition `json:"audio,omitempty"`
	NeedsMerge bool       `json:"needs_merge"`
	Info       VideoInfo  `json:"info"`
}
