package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/whisper-darkly/twitch-recorder/logger"
	"github.com/whisper-darkly/twitch-recorder/stream"
	"github.com/whisper-darkly/twitch-recorder/units"
)

var (
	// ErrStreamOffline is returned by Start when the channel has no live variants.
	ErrStreamOffline = errors.New("stream is offline")
	// ErrAlreadyRecording is returned by Start on a recorder that has left Idle.
	ErrAlreadyRecording = errors.New("recorder already started")
	// ErrNotRecording is returned by Stop unless ffmpeg is running.
	ErrNotRecording = errors.New("not recording")
)

// Resolver lists the playable variants of a channel. Offline is nil or empty.
type Resolver interface {
	Variants(ctx context.Context, channel string) ([]stream.Variant, error)
}

// Config holds recording parameters.
type Config struct {
	Resolver Resolver

	FFmpegPath  string         // default "ffmpeg"
	SegmentTime time.Duration  // HLS segment length for directory targets (default 10s)
	StopSignal  syscall.Signal // sent by Stop (default SIGINT)
	KillAfter   time.Duration  // SIGKILL this long after Stop (0 = never)
	StderrLines int            // stderr lines kept for failure reports (default 50)

	Log *logger.Logger
}

// Status is a point-in-time snapshot of a Recorder.
type Status struct {
	ID       string    `json:"id"`
	Channel  string    `json:"channel,omitempty"`
	State    State     `json:"state"`
	Variant  string    `json:"variant,omitempty"`
	Target   string    `json:"target,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Progress *Progress `json:"progress,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Recorder resolves a channel to its best variant and supervises one ffmpeg
// process copying it to a Target. A Recorder is single-use.
type Recorder struct {
	cfg  Config
	id   string
	log  *logger.Logger
	bus  EventBus.Bus
	ring *LineRing
	done chan struct{}

	mu            sync.Mutex
	state         State
	err           error
	channel       string
	target        Target
	variant       stream.Variant
	started       time.Time
	proc          *process
	stopRequested bool
	killTimer     *time.Timer
	last          *Progress

	emitMu     sync.Mutex
	terminated bool
}

// New creates an idle Recorder.
func New(cfg Config) *Recorder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.SegmentTime <= 0 {
		cfg.SegmentTime = 10 * time.Second
	}
	if cfg.StopSignal == 0 {
		cfg.StopSignal = syscall.SIGINT
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	id := uuid.NewString()
	return &Recorder{
		cfg:  cfg,
		id:   id,
		log:  cfg.Log.With("file", "recorder").With("session", id),
		bus:  EventBus.New(),
		ring: NewLineRing(cfg.StderrLines),
		done: make(chan struct{}),
	}
}

// ID returns the session identifier attached to this recorder's logs.
func (r *Recorder) ID() string { return r.id }

// kv is a shorthand for logger.KV.
func kv(key, value string) logger.KV { return logger.KV{Key: key, Value: value} }

// Start resolves channel, picks the highest variant and spawns ffmpeg writing
// to target. It returns once ffmpeg is running; the process is not bound to
// ctx and ends only by Stop or on its own.
func (r *Recorder) Start(ctx context.Context, channel string, target Target) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	if err := target.validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = StateResolving
	r.channel = channel
	r.target = target
	r.mu.Unlock()

	log := r.log.With("channel", channel)

	variants, err := r.cfg.Resolver.Variants(ctx, channel)
	if err != nil {
		log.Debug("resolve: %v", err)
		r.failStart(err, "resolve_error")
		return err
	}
	best, ok := stream.BestVariant(variants)
	if !ok {
		log.Debug("%s is offline", channel)
		r.failStart(ErrStreamOffline, "offline")
		return ErrStreamOffline
	}

	r.mu.Lock()
	r.state = StateLaunching
	r.variant = best
	r.mu.Unlock()

	args := ffmpegArgs(best.URI, target, r.cfg.SegmentTime)
	log.Debug("ffmpeg %s", strings.Join(args, " "))

	stderr := io.MultiWriter(r.ring, r.log.Writer(logger.LevelDebug))
	proc, err := spawn(r.cfg.FFmpegPath, args, target, stderr)
	if err != nil {
		log.Debug("spawn: %v", err)
		r.failStart(err, "spawn_error")
		return err
	}

	r.mu.Lock()
	r.proc = proc
	r.started = time.Now()
	r.state = StateRecording
	r.mu.Unlock()

	startTotal.WithLabelValues("ok").Inc()
	log.Event("RECORDING START",
		kv("channel", channel),
		kv("variant", best.Label()),
		kv("target", target.String()))

	r.publish(topicStart)

	go r.supervise(proc)
	return nil
}

// failStart records a failure that happened before ffmpeg was running.
// No events are published for it.
func (r *Recorder) failStart(err error, result string) {
	r.mu.Lock()
	r.state = StateFailed
	r.err = err
	r.mu.Unlock()

	startTotal.WithLabelValues(result).Inc()
	close(r.done)
}

// supervise reads progress until ffmpeg closes fd 3, reaps the process and
// publishes exactly one terminal event.
func (r *Recorder) supervise(proc *process) {
	r.readProgress(proc.progress)
	_ = proc.progress.Close()

	waitErr := proc.cmd.Wait()
	report := newExitReport(proc.cmd.ProcessState, waitErr, r.ring.LastN(reportStderrLines))

	r.mu.Lock()
	if r.killTimer != nil {
		r.killTimer.Stop()
	}
	var failure *FailureError
	reason := "stream_end"
	switch {
	case report.clean():
		if r.stopRequested {
			reason = "stopped"
		}
	case r.stopRequested && stoppedBySignal(report, r.cfg.StopSignal):
		reason = "stopped"
	default:
		failure = report.failure()
		reason = "error"
	}
	if failure != nil {
		r.state = StateFailed
		r.err = failure
	} else {
		r.state = StateEnded
	}
	r.proc = nil
	started := r.started
	channel := r.channel
	r.mu.Unlock()

	exitTotal.WithLabelValues(reason).Inc()
	r.log.Event("RECORDING END",
		kv("channel", channel),
		kv("duration", units.FormatDuration(time.Since(started))),
		kv("trigger", reason))

	if failure != nil {
		r.log.Debug("%v", failure)
		r.publish(topicError, error(failure))
	} else {
		r.publish(topicEnd)
	}
	close(r.done)
}

func (r *Recorder) readProgress(rd io.Reader) {
	var p progressParser
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		if pr, ok := p.feed(scanner.Text()); ok {
			r.emitProgress(pr)
		}
	}
	// Keep draining so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, rd)
}

func (r *Recorder) emitProgress(p Progress) {
	r.mu.Lock()
	state := r.state
	if state == StateRecording || state == StateStopping {
		r.last = &p
	}
	r.mu.Unlock()
	if state != StateRecording && state != StateStopping {
		return
	}
	r.publish(topicProgress, p)
}

// Stop asks ffmpeg to finish by sending the stop signal to its process group.
// It does not wait for the exit; use Done or Wait for that.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording || r.proc == nil {
		return ErrNotRecording
	}

	proc := r.proc
	if err := signalProcess(proc, r.cfg.StopSignal); err != nil {
		return fmt.Errorf("signal ffmpeg: %w", err)
	}
	r.stopRequested = true
	r.state = StateStopping
	r.log.Info("sent %s to ffmpeg", signalName(r.cfg.StopSignal))

	if r.cfg.KillAfter > 0 {
		r.killTimer = time.AfterFunc(r.cfg.KillAfter, func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.proc != proc {
				return
			}
			r.log.Warn("ffmpeg still running %s after stop, killing", units.FormatDuration(r.cfg.KillAfter))
			_ = signalProcess(proc, syscall.SIGKILL)
		})
	}
	return nil
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the terminal error, or nil while running or after a clean end.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the recorder reaches Ended or Failed.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Wait blocks until the recorder is terminal or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot for status reporting.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		ID:      r.id,
		Channel: r.channel,
		State:   r.state,
		Started: r.started,
	}
	if r.variant.URI != "" {
		s.Variant = r.variant.Label()
	}
	if r.state != StateIdle {
		s.Target = r.target.String()
	}
	if r.last != nil {
		p := *r.last
		s.Progress = &p
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

// StderrTail returns the last n lines ffmpeg wrote to stderr.
func (r *Recorder) StderrTail(n int) []string { return r.ring.LastN(n) }
