// Package selector picks concrete renditions for a requested quality out of
// an extraction result. Selection is deterministic for a given input: same
// renditions, same target, same output.
package selector

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"media-acquire-go/pkg/types"
)

// ErrNoDownloadableRendition means no resolvable rendition satisfies the
// requested quality in any acceptable form.
var ErrNoDownloadableRendition = errors.New("no downloadable rendition for requested quality")

// separateStreamThreshold is the height at or above which the upstream stops
// offering muxed streams, so video and audio must be fetched separately and
// merged.
const separateStreamThreshold = 720

// QualityBest requests the highest available quality.
const QualityBest = "best"

// QualityAudio requests an audio-only result.
const QualityAudio = "audio"

// ParseQuality normalizes a requested quality string ("720p", "1080", "best",
// "audio") to a target height, with 0 meaning best and -1 meaning audio-only.
func ParseQuality(quality string) (int, error) {
	q := strings.ToLower(strings.TrimSpace(quality))
	switch q {
	case "", QualityBest:
		return 0, nil
	case QualityAudio, "audio_only", "audioonly":
		return -1, nil
	}
	q = strings.TrimSuffix(q, "p")
	height, err := strconv.Atoi(q)
	if err != nil || height <= 0 {
		return 0, errors.New("unrecognized quality: " + quality)
	}
	return height, nil
}

// Select picks the rendition(s) to materialize for the target height.
// target 0 means best available, -1 means audio-only. Renditions without a
// resolved URL never participate.
func Select(ext *types.Extraction, target int) (*types.ResolvedMedia, error) {
	var combined, videoOnly, audioOnly []types.Rendition
	for _, r := range ext.Renditions {
		if !r.IsDirectDownload() {
			continue
		}
		switch {
		case r.HasBoth():
			combined = append(combined, r)
		case r.IsVideoOnly():
			videoOnly = append(videoOnly, r)
		case r.IsAudioOnly():
			audioOnly = append(audioOnly, r)
		}
	}

	if target < 0 {
		audio := bestAudio(audioOnly)
		if audio == nil {
			// Fall back to a muxed stream when the upstream offers no
			// discrete audio track.
			if best := bestCombined(combined, 0); best != nil {
				return &types.ResolvedMedia{Video: best, Info: ext.Info}, nil
			}
			return nil, ErrNoDownloadableRendition
		}
		return &types.ResolvedMedia{Audio: audio, Info: ext.Info}, nil
	}

	// At or above the threshold the upstream only serves discrete streams,
	// so prefer the separate-stream path there and the muxed path below it.
	if target == 0 || target >= separateStreamThreshold {
		if media := selectSeparate(ext, videoOnly, audioOnly, target); media != nil {
			return media, nil
		}
		if best := bestCombined(combined, target); best != nil {
			return &types.ResolvedMedia{Video: best, Info: ext.Info}, nil
		}
		return nil, ErrNoDownloadableRendition
	}

	if best := bestCombined(combined, target); best != nil {
		return &types.ResolvedMedia{Video: best, Info: ext.Info}, nil
	}
	if media := selectSeparate(ext, videoOnly, audioOnly, target); media != nil {
		return media, nil
	}
	return nil, ErrNoDownloadableRendition
}

// selectSeparate pairs a video-only rendition with the best audio-only one.
// Returns nil when either half is missing; a merge pair is only promised when
// both streams exist.
func selectSeparate(ext *types.Extraction, videoOnly, audioOnly []types.Rendition, target int) *types.ResolvedMedia {
	video := bestVideoOnly(videoOnly, target)
	if video == nil {
		return nil
	}
	audio := bestAudio(audioOnly)
	if audio == nil {
		return nil
	}
	return &types.ResolvedMedia{
		Video:      video,
		Audio:      audio,
		NeedsMerge: true,
		Info:       ext.Info,
	}
}

// bestVideoOnly picks the video-only rendition closest to target from below
// or at it, preferring broadly compatible containers, then height, then
// bitrate. When nothing fits under the target, the closest above is taken.
// target 0 means highest available.
func bestVideoOnly(candidates []types.Rendition, target int) *types.Rendition {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]types.Rendition, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		if a.IsBroadlyCompatible() != b.IsBroadlyCompatible() {
			return a.IsBroadlyCompatible()
		}
		return a.Bitrate > b.Bitrate
	})

	if target == 0 {
		return &sorted[0]
	}
	for i := range sorted {
		if sorted[i].Height <= target {
			return &sorted[i]
		}
	}
	// Everything is above target; take the smallest overshoot.
	return &sorted[len(sorted)-1]
}

// bestCombined picks the muxed rendition with the greatest height not above
// target (0 means no cap), preferring compatible containers then bitrate on
// equal height. Returns nil when all muxed renditions exceed the target.
func bestCombined(candidates []types.Rendition, target int) *types.Rendition {
	var eligible []types.Rendition
	for _, r := range candidates {
		if target == 0 || r.Height <= target {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		if a.IsBroadlyCompatible() != b.IsBroadlyCompatible() {
			return a.IsBroadlyCompatible()
		}
		return a.Bitrate > b.Bitrate
	})
	return &eligible[0]
}

// bestAudio picks the highest-bitrate audio-only rendition, preferring m4a
// over webm/opus on equal bitrate.
func bestAudio(candidates []types.Rendition) *types.Rendition {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]types.Rendition, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Bitrate != b.Bitrate {
			return a.Bitrate > b.Bitrate
		}
		return a.IsBroadlyCompatible() && !b.IsBroadlyCompatible()
	})
	return &sorted[0]
}
