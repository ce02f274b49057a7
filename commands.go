package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisper-darkly/twitch-recorder/logger"
	"github.com/whisper-darkly/twitch-recorder/monitor"
	"github.com/whisper-darkly/twitch-recorder/recorder"
	"github.com/whisper-darkly/twitch-recorder/stream"
	"github.com/whisper-darkly/twitch-recorder/units"
)

func kv(key, value string) logger.KV { return logger.KV{Key: key, Value: value} }

func (a *app) recordCmd() *cobra.Command {
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "record <channel>",
		Short: "Record a channel until it ends, is interrupted or fails",
		Long: "Record a channel into an HLS directory rendered from --out, or as MPEG-TS\n" +
			"on stdout with --stdout. With --check-interval the channel is watched and\n" +
			"recorded again whenever it goes live.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.record(cmd.Context(), args[0], toStdout)
		},
	}
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Write MPEG-TS to stdout instead of an output directory")
	return cmd
}

func (a *app) record(ctx context.Context, channel string, toStdout bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if toStdout {
		// stdout carries the recording.
		a.log.SetOutput(os.Stderr, os.Stderr)
	} else if a.cfg.Out == "" {
		return errors.New("--out is required unless --stdout is set")
	}
	if err := a.openLogFile(channel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second interrupt terminates immediately.
		stop()
	}()

	drv, err := a.newDriver(ctx, channel)
	if err != nil {
		return err
	}

	var mon *monitor.Server
	if a.cfg.MetricsAddr != "" {
		mon = monitor.New(a.cfg.MetricsAddr, a.log)
		if err := mon.Start(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mon.Shutdown(shutdownCtx)
		}()
	}

	log := a.log.With("channel", channel)
	log.Event("SESSION START", kv("channel", channel), kv("driver", drv.Name()))
	defer log.Event("SESSION END", kv("channel", channel))

	for attempt := 0; ; attempt++ {
		target, err := a.target(channel, drv.Name(), attempt, toStdout)
		if err != nil {
			return err
		}

		rec := recorder.New(a.recorderConfig(drv))
		if mon != nil {
			mon.Track(rec)
		}

		limited, err := a.attempt(ctx, rec, channel, target)
		if ctx.Err() != nil {
			log.Info("interrupted")
			return nil
		}
		if limited && err == nil {
			return nil
		}

		var wait time.Duration
		switch classify(err) {
		case stream.Ended:
			if a.cfg.CheckInterval == 0 {
				if err != nil {
					return withExitCode(exitOffline, fmt.Errorf("%s: %w", channel, err))
				}
				log.Info("recording ended")
				return nil
			}
			if err == nil {
				log.Info("recording ended")
			} else {
				log.Info("%s is offline", channel)
			}
			wait = time.Duration(a.cfg.CheckInterval)
		case stream.TransientError:
			if a.cfg.CheckInterval == 0 {
				return err
			}
			wait = time.Duration(a.cfg.RetryDelay)
			log.Warn("%v, retrying in %s", err, units.FormatDuration(wait))
		default:
			return err
		}

		log.Debug("next check in %s", units.FormatDuration(wait))
		if !sleep(ctx, wait) {
			log.Info("interrupted")
			return nil
		}
	}
}

// classify maps an attempt outcome to the watch loop's policy. A recording
// that failed after starting is retried like a network failure.
func classify(err error) stream.InterruptionType {
	if errors.Is(err, recorder.ErrRecordingFailure) {
		return stream.TransientError
	}
	return stream.Classify(err, recorder.ErrStreamOffline)
}

// attempt runs one recording to completion. limited reports whether it was
// stopped by the --duration limit.
func (a *app) attempt(ctx context.Context, rec *recorder.Recorder, channel string, target recorder.Target) (limited bool, err error) {
	log := a.log.With("channel", channel)
	unsubscribe := rec.OnProgress(func(p recorder.Progress) {
		log.Debug("progress: time=%s frames=%d fps=%.1f bitrate=%.1fkbit/s size=%s",
			p.Timemark, p.Frames, p.CurrentFPS, p.CurrentKbps, units.FormatSize(p.TargetSize*1024))
	})
	defer unsubscribe()

	if err := rec.Start(ctx, channel, target); err != nil {
		return false, err
	}

	var limit <-chan time.Time
	if a.cfg.Duration > 0 {
		timer := time.NewTimer(time.Duration(a.cfg.Duration))
		defer timer.Stop()
		limit = timer.C
	}

	select {
	case <-rec.Done():
		return false, rec.Err()
	case <-ctx.Done():
		log.Warn("interrupted, stopping recording")
	case <-limit:
		limited = true
		log.Info("duration limit of %s reached, stopping recording", units.FormatDuration(time.Duration(a.cfg.Duration)))
	}

	return limited, stopAndWait(rec)
}

// stopAndWait stops rec unless it already reached a terminal state, then
// waits for it and returns its terminal error.
func stopAndWait(rec *recorder.Recorder) error {
	if !rec.State().Terminal() {
		if err := rec.Stop(); err != nil && !errors.Is(err, recorder.ErrNotRecording) {
			return err
		}
	}
	<-rec.Done()
	return rec.Err()
}

func (a *app) recorderConfig(resolver recorder.Resolver) recorder.Config {
	return recorder.Config{
		Resolver:    resolver,
		FFmpegPath:  a.cfg.FFmpegPath,
		SegmentTime: time.Duration(a.cfg.SegmentTime),
		StopSignal:  syscall.Signal(a.cfg.StopSignal),
		KillAfter:   time.Duration(a.cfg.KillAfter),
		Log:         a.log,
	}
}

func (a *app) target(channel, driverName string, attempt int, toStdout bool) (recorder.Target, error) {
	if toStdout {
		return recorder.SinkTarget(os.Stdout), nil
	}
	dir, err := recorder.RenderTemplate(a.cfg.Out, recorder.NewTemplateData(channel, driverName, time.Now(), attempt))
	if err != nil {
		return recorder.Target{}, fmt.Errorf("render output template: %w", err)
	}
	return recorder.DirectoryTarget(dir), nil
}

// sleep waits for d, returning false if ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <channel>",
		Short: "Report whether a channel is live (exit 2 when offline)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			drv, err := a.newDriver(ctx, args[0])
			if err != nil {
				return err
			}
			online, err := drv.IsOnline(ctx, args[0])
			if err != nil {
				return err
			}
			if !online {
				fmt.Fprintln(cmd.OutOrStdout(), "offline")
				return withExitCode(exitOffline, fmt.Errorf("%s: %w", args[0], recorder.ErrStreamOffline))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "online")
			return nil
		},
	}
}

func (a *app) variantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants <channel>",
		Short: "List a live channel's variants, best first (exit 2 when offline)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			drv, err := a.newDriver(ctx, args[0])
			if err != nil {
				return err
			}
			variants, err := drv.Variants(ctx, args[0])
			if err != nil {
				return err
			}
			if len(variants) == 0 {
				return withExitCode(exitOffline, fmt.Errorf("%s: %w", args[0], recorder.ErrStreamOffline))
			}
			return printVariants(cmd.OutOrStdout(), stream.RankVariants(variants))
		},
	}
}

func printVariants(w io.Writer, variants []stream.Variant) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tNAME\tBANDWIDTH\tCODECS\tURI")
	for _, v := range variants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			v.Label(), v.Name, strconv.FormatUint(uint64(v.Bandwidth), 10), v.Codecs, v.URI)
	}
	return tw.Flush()
}
