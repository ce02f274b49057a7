package stream

import (
	"context"
	"fmt"
	"sort"

	"github.com/whisper-darkly/twitch-recorder/cookies"
	"github.com/whisper-darkly/twitch-recorder/logger"
)

// PlaybackAccessToken is the short-lived signed credential needed to fetch a
// channel's master playlist. It is scoped to one playback session and is
// never cached.
type PlaybackAccessToken struct {
	Value     string
	Signature string
}

// Resolution is the declared pixel size of a variant.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Variant is one rendition listed in a master playlist.
type Variant struct {
	URI              string
	Resolution       *Resolution // nil when the playlist declares none
	Bandwidth        uint32
	AverageBandwidth uint32
	Codecs           string
	FrameRate        float64
	Name             string
	Video            string
}

// Height returns the declared height, or 0 when no resolution is declared.
func (v Variant) Height() int {
	if v.Resolution == nil {
		return 0
	}
	return v.Resolution.Height
}

// Label is a short human-readable description used in logs.
func (v Variant) Label() string {
	res := "audio/unknown"
	if v.Resolution != nil {
		res = v.Resolution.String()
	}
	if v.FrameRate > 0 {
		return fmt.Sprintf("%s@%.0f", res, v.FrameRate)
	}
	return res
}

// StatusSource reports whether a channel is currently live.
type StatusSource interface {
	IsOnline(ctx context.Context, channel string) (bool, error)
}

// Driver resolves a channel on one platform into playable variants.
//
// Each stage short-circuits: an offline channel yields (nil, nil) from
// PlaybackAccessToken and Variants without further requests, while an online
// channel that cannot be resolved yields an error.
type Driver interface {
	// Name returns the driver identifier (e.g., "twitch").
	Name() string

	IsOnline(ctx context.Context, channel string) (bool, error)
	PlaybackAccessToken(ctx context.Context, channel string) (*PlaybackAccessToken, error)
	Variants(ctx context.Context, channel string) ([]Variant, error)
}

// Factory builds a driver from options.
type Factory func(opts Options) (Driver, error)

// Options carries the settings every driver factory may use.
type Options struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	// Base URL overrides, empty means the platform default.
	APIBaseURL  string
	SiteURL     string
	GQLURL      string
	PlaylistURL string

	Cookies *cookies.Pool  // browser cookies for the token exchange, may be nil
	Log     *logger.Logger // may be nil
}

var registry = map[string]Factory{}

// Register adds a driver factory to the global registry.
func Register(name string, f Factory) {
	registry[name] = f
}

// New builds a registered driver by name.
func New(name string, opts Options) (Driver, error) {
	f, ok := registry[name]
	if !ok {
		names := make([]string, 0, len(registry))
		for n := range registry {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown driver %q (available: %v)", name, names)
	}
	return f(opts)
}
