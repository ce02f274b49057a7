package stream

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

// ParseMasterPlaylist decodes body and returns its variants in playlist
// order. Anything other than a master playlist fails with ErrPlaylist.
// Relative variant URIs are resolved against baseURL.
func ParseMasterPlaylist(body, baseURL string) ([]Variant, error) {
	p, listType, err := m3u8.DecodeFrom(strings.NewReader(body), true)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrPlaylist, err)
	}

	master, ok := p.(*m3u8.MasterPlaylist)
	if !ok || listType != m3u8.MASTER {
		return nil, fmt.Errorf("%w: expected master playlist, got media playlist", ErrPlaylist)
	}

	variants := make([]Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		variants = append(variants, Variant{
			URI:              resolvePlaylistURL(baseURL, v.URI),
			Resolution:       parseResolution(v.Resolution),
			Bandwidth:        v.Bandwidth,
			AverageBandwidth: v.AverageBandwidth,
			Codecs:           v.Codecs,
			FrameRate:        v.FrameRate,
			Name:             v.Name,
			Video:            v.Video,
		})
	}
	return variants, nil
}

// parseResolution parses "1920x1080". Anything unparseable counts as absent.
func parseResolution(s string) *Resolution {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return nil
	}
	width, err1 := strconv.Atoi(parts[0])
	height, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || width < 0 || height < 0 {
		return nil
	}
	return &Resolution{Width: width, Height: height}
}

// RankVariants returns a copy of variants ordered by height, highest first.
// Variants without a resolution rank as height 0. The sort is stable, so the
// first-listed variant wins among equals.
func RankVariants(variants []Variant) []Variant {
	ranked := slices.Clone(variants)
	slices.SortStableFunc(ranked, func(a, b Variant) int {
		return b.Height() - a.Height()
	})
	return ranked
}

// BestVariant returns the top-ranked variant. ok is false for an empty set.
func BestVariant(variants []Variant) (best Variant, ok bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	best = variants[0]
	for _, v := range variants[1:] {
		if v.Height() > best.Height() {
			best = v
		}
	}
	return best, true
}

// resolvePlaylistURL constructs the full variant URL from the base master playlist URL
// and the relative variant URI, preserving query parameters.
func resolvePlaylistURL(baseURL, variantURI string) string {
	if baseURL == "" || strings.HasPrefix(variantURI, "http://") || strings.HasPrefix(variantURI, "https://") {
		return variantURI
	}

	queryPart := ""
	pathPart := baseURL
	if idx := strings.Index(baseURL, "?"); idx != -1 {
		pathPart = baseURL[:idx]
		queryPart = baseURL[idx:]
	}

	if lastSlash := strings.LastIndex(pathPart, "/"); lastSlash != -1 {
		return pathPart[:lastSlash+1] + variantURI + queryPart
	}
	return variantURI + queryPart
}
