package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisper-darkly/twitch-recorder/config"
	"github.com/whisper-darkly/twitch-recorder/cookies"
	_ "github.com/whisper-darkly/twitch-recorder/driver" // register drivers
	"github.com/whisper-darkly/twitch-recorder/logger"
	"github.com/whisper-darkly/twitch-recorder/recorder"
	"github.com/whisper-darkly/twitch-recorder/stream"
)

// Set via ldflags at build time: -ldflags "-X main.version=..."
var version = "dev"

const (
	exitOK      = 0
	exitError   = 1
	exitOffline = 2
)

// exitCodeError carries a process exit code other than 1.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	return &exitCodeError{code: code, err: err}
}

// app holds what the subcommands share once flags are parsed.
type app struct {
	configPath string
	cfg        config.Config
	log        *logger.Logger
	logFile    *os.File
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	a := &app{}
	root := a.rootCmd()
	root.SetArgs(args)

	err := root.Execute()
	a.closeLogFile()
	if err == nil {
		return exitOK
	}

	code := exitError
	var ec *exitCodeError
	if errors.As(err, &ec) {
		code = ec.code
	}
	if a.log != nil {
		if code == exitOffline {
			a.log.Warn("%v", err)
		} else {
			a.log.Error("%v", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return code
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "twitch-recorder",
		Short: "Record live Twitch channels with ffmpeg",
		Long: "Record live Twitch channels with ffmpeg.\n\n" +
			"Durations: hh:mm:ss | 1h30m | plain seconds.\n" +
			"Exit codes: 0=ok  1=error  2=offline",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("TWITCHREC_CONFIG"), "YAML config file (env TWITCHREC_CONFIG)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(a.recordCmd(), a.statusCmd(), a.variantsCmd())
	return root
}

// setup resolves the configuration (defaults, file, env, flags) and creates
// the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg.Driver = normalizeDriverName(cfg.Driver)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.log = logger.New(logger.ParseLevel(cfg.LogLevel))
	a.log.SetFormat(logger.ParseFormat(cfg.OutputFormat))
	return nil
}

// newDriver builds the configured driver, loading cookies for channel first.
func (a *app) newDriver(ctx context.Context, channel string) (stream.Driver, error) {
	pool, err := initCookiePool(ctx, a.cfg, channel, a.log)
	if err != nil {
		return nil, fmt.Errorf("cookie pool: %w", err)
	}
	return stream.New(a.cfg.Driver, stream.Options{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		UserAgent:    a.cfg.UserAgent,
		APIBaseURL:   a.cfg.APIBaseURL,
		SiteURL:      a.cfg.SiteURL,
		GQLURL:       a.cfg.GQLURL,
		PlaylistURL:  a.cfg.PlaylistURL,
		Cookies:      pool,
		Log:          a.log,
	})
}

func initCookiePool(ctx context.Context, cfg config.Config, channel string, log *logger.Logger) (*cookies.Pool, error) {
	if cfg.Cookies == "" {
		return cookies.NewPool(nil), nil
	}

	src, err := cookies.NewSource(cfg.Cookies, cookies.SourceConfig{
		ExternalEnabled: cfg.ExternalCookies,
		SafeDomains:     cfg.CookiesSafeDomains,
		JSONMode:        cfg.CookiesJSON,
		RefreshInterval: time.Duration(cfg.CookiesRefresh),
		Driver:          cfg.Driver,
		Channel:         channel,
	})
	if err != nil {
		return nil, err
	}

	initial, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}

	pool := cookies.NewPool(initial)
	src.StartRefresh(ctx, pool, log)
	return pool, nil
}

// openLogFile renders the --log template and mirrors all logging into it.
func (a *app) openLogFile(channel string) error {
	if a.cfg.LogFile == "" {
		return nil
	}
	data := recorder.NewTemplateData(channel, a.cfg.Driver, time.Now(), 0)
	logPath, err := recorder.RenderTemplate(a.cfg.LogFile, data)
	if err != nil {
		return fmt.Errorf("render log template: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	a.logFile = f
	a.log.SetFile(f)
	a.log.Info("logging to %s", logPath)
	return nil
}

func (a *app) closeLogFile() {
	if a.logFile != nil {
		a.log.SetFile(nil)
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

// normalizeDriverName handles common aliases.
func normalizeDriverName(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "tw", "ttv", "twitch", "twitch.tv":
		return "twitch"
	default:
		return n
	}
}
