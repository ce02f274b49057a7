package config

import (
	"strconv"

	"github.com/whisper-darkly/twitch-recorder/units"
)

// field binds one setting to its flag and environment variable.
type field struct {
	flag   string
	env    string
	usage  string
	isBool bool
	set    func(c *Config, v string) error
	get    func(c Config) string
}

func stringField(flagName, env, usage string, p func(c *Config) *string) field {
	return field{
		flag:  flagName,
		env:   env,
		usage: usage,
		set:   func(c *Config, v string) error { *p(c) = v; return nil },
		get:   func(c Config) string { return *p(&c) },
	}
}

func boolField(flagName, env, usage string, p func(c *Config) *bool) field {
	return field{
		flag:   flagName,
		env:    env,
		usage:  usage,
		isBool: true,
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p(c) = b
			return nil
		},
		get: func(c Config) string { return strconv.FormatBool(*p(&c)) },
	}
}

func durationField(flagName, env, usage string, p func(c *Config) *Duration) field {
	return field{
		flag:  flagName,
		env:   env,
		usage: usage,
		set: func(c *Config, v string) error {
			d, err := units.ParseDuration(v)
			if err != nil {
				return err
			}
			*p(c) = Duration(d)
			return nil
		},
		get: func(c Config) string {
			d := *p(&c)
			if d == 0 {
				return "0"
			}
			return d.String()
		},
	}
}

var fields = []field{
	stringField("client-id", "TWITCH_CLIENT_ID", "Twitch application client id", func(c *Config) *string { return &c.ClientID }),
	stringField("client-secret", "TWITCH_CLIENT_SECRET", "Twitch application client secret", func(c *Config) *string { return &c.ClientSecret }),
	stringField("user-agent", "TWITCHREC_USER_AGENT", "Custom User-Agent header", func(c *Config) *string { return &c.UserAgent }),
	stringField("driver", "TWITCHREC_DRIVER", "Driver name", func(c *Config) *string { return &c.Driver }),
	stringField("ffmpeg", "TWITCHREC_FFMPEG", "ffmpeg binary", func(c *Config) *string { return &c.FFmpegPath }),
	stringField("out", "TWITCHREC_OUT", "Output directory template", func(c *Config) *string { return &c.Out }),
	durationField("segment-time", "TWITCHREC_SEGMENT_TIME", "HLS segment length", func(c *Config) *Duration { return &c.SegmentTime }),
	{
		flag:  "stop-signal",
		env:   "TWITCHREC_STOP_SIGNAL",
		usage: "Signal sent to ffmpeg to stop a recording",
		set: func(c *Config, v string) error {
			s, err := ParseSignal(v)
			if err != nil {
				return err
			}
			c.StopSignal = s
			return nil
		},
		get: func(c Config) string { return c.StopSignal.String() },
	},
	durationField("kill-after", "TWITCHREC_KILL_AFTER", "Kill ffmpeg this long after a stop (0=never)", func(c *Config) *Duration { return &c.KillAfter }),
	durationField("duration", "TWITCHREC_DURATION", "Stop each recording after this long (0=unlimited)", func(c *Config) *Duration { return &c.Duration }),
	durationField("check-interval", "TWITCHREC_CHECK_INTERVAL", "Watch interval when offline (0=exit)", func(c *Config) *Duration { return &c.CheckInterval }),
	durationField("retry-delay", "TWITCHREC_RETRY_DELAY", "Delay before retrying after a transient error in watch mode", func(c *Config) *Duration { return &c.RetryDelay }),
	stringField("log-level", "TWITCHREC_LOG_LEVEL", "Log level: debug, info, warn, error, fatal", func(c *Config) *string { return &c.LogLevel }),
	stringField("output-format", "TWITCHREC_OUTPUT_FORMAT", "Output format: normal, json", func(c *Config) *string { return &c.OutputFormat }),
	stringField("log", "TWITCHREC_LOG", "Log file path template (empty=console only)", func(c *Config) *string { return &c.LogFile }),
	stringField("metrics-addr", "TWITCHREC_METRICS_ADDR", "Serve /metrics, /healthz and /status on this address", func(c *Config) *string { return &c.MetricsAddr }),
	stringField("cookies", "TWITCHREC_COOKIES", "Browser cookies with auth-token (literal, file:// or URL)", func(c *Config) *string { return &c.Cookies }),
	boolField("external-cookies", "TWITCHREC_EXTERNAL_COOKIES", "Allow file:// and URL cookie sources", func(c *Config) *bool { return &c.ExternalCookies }),
	stringField("cookies-safe-domains", "TWITCHREC_COOKIES_SAFE_DOMAINS", "Hosts or CIDRs URL cookie sources may use", func(c *Config) *string { return &c.CookiesSafeDomains }),
	boolField("cookies-json", "TWITCHREC_COOKIES_JSON", "Cookie source holds a JSON array", func(c *Config) *bool { return &c.CookiesJSON }),
	durationField("cookies-refresh", "TWITCHREC_COOKIES_REFRESH", "Reload external cookie sources this often (0=never)", func(c *Config) *Duration { return &c.CookiesRefresh }),
}
