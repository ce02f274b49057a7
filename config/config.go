// Package config resolves recorder settings from defaults, an optional YAML
// file, the environment and command-line flags, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/whisper-darkly/twitch-recorder/units"
)

// Config is the full set of recorder settings.
type Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	UserAgent    string `yaml:"user_agent"`
	Driver       string `yaml:"driver" validate:"required"`

	FFmpegPath  string   `yaml:"ffmpeg_path" validate:"required"`
	Out         string   `yaml:"out"`
	SegmentTime Duration `yaml:"segment_time" validate:"gt=0"`
	StopSignal  Signal   `yaml:"stop_signal" validate:"gt=0"`
	KillAfter   Duration `yaml:"kill_after" validate:"gte=0"`
	Duration    Duration `yaml:"duration" validate:"gte=0"`

	CheckInterval Duration `yaml:"check_interval" validate:"gte=0"`
	RetryDelay    Duration `yaml:"retry_delay" validate:"gte=0"`

	LogLevel     string `yaml:"log_level" validate:"oneof=trace debug info warn warning error fatal"`
	OutputFormat string `yaml:"output_format" validate:"oneof=normal json"`
	LogFile      string `yaml:"log_file"`
	MetricsAddr  string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	Cookies            string   `yaml:"cookies"`
	ExternalCookies    bool     `yaml:"external_cookies"`
	CookiesSafeDomains string   `yaml:"cookies_safe_domains"`
	CookiesJSON        bool     `yaml:"cookies_json"`
	CookiesRefresh     Duration `yaml:"cookies_refresh" validate:"gte=0"`

	// Endpoint overrides, empty means the platform default.
	APIBaseURL  string `yaml:"api_base_url" validate:"omitempty,url"`
	SiteURL     string `yaml:"site_url" validate:"omitempty,url"`
	GQLURL      string `yaml:"gql_url" validate:"omitempty,url"`
	PlaylistURL string `yaml:"playlist_url" validate:"omitempty,url"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Driver:       "twitch",
		FFmpegPath:   "ffmpeg",
		Out:          "{{.Channel}}/{{.Started.Year}}-{{.Started.Month}}-{{.Started.Day}}_{{.Started.Hour}}-{{.Started.Minute}}-{{.Started.Second}}",
		SegmentTime:  Duration(10 * time.Second),
		StopSignal:   Signal(syscall.SIGINT),
		RetryDelay:   Duration(30 * time.Second),
		LogLevel:     "info",
		OutputFormat: "normal",
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// then the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path. Unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays every setting whose environment variable is set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, f := range fields {
		v, ok := lookup(f.env)
		if !ok {
			continue
		}
		if err := f.set(c, v); err != nil {
			return fmt.Errorf("invalid %s: %w", f.env, err)
		}
	}
	return nil
}

// RegisterFlags adds one flag per setting to fs.
func RegisterFlags(fs *flag.FlagSet) {
	def := Default()
	for _, f := range fields {
		usage := f.usage + " (env " + f.env + ")"
		if f.isBool {
			fs.Bool(f.flag, false, usage)
			continue
		}
		fs.String(f.flag, f.get(def), usage)
	}
}

// ApplyFlags overlays the settings whose flags were set explicitly on fs.
func (c *Config) ApplyFlags(fs *flag.FlagSet) error {
	for _, f := range fields {
		fl := fs.Lookup(f.flag)
		if fl == nil || !fl.Changed {
			continue
		}
		if err := f.set(c, fl.Value.String()); err != nil {
			return fmt.Errorf("invalid --%s: %w", f.flag, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Duration is a time.Duration accepting units.ParseDuration forms in YAML.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := units.ParseDuration(n.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Signal is a signal given by name ("SIGINT", "INT") or number in config.
type Signal syscall.Signal

func (s Signal) String() string {
	if name := unix.SignalName(syscall.Signal(s)); name != "" {
		return name
	}
	return strconv.Itoa(int(s))
}

func (s *Signal) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseSignal(n.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSignal parses a signal name with or without the SIG prefix, or a number.
func ParseSignal(s string) (Signal, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return Signal(n), nil
	}
	if !strings.HasPrefix(s, "SIG") {
		s = "SIG" + s
	}
	if sig := unix.SignalNum(s); sig != 0 {
		return Signal(sig), nil
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}
