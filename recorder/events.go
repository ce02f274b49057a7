package recorder

const (
	topicStart    = "recorder:start"
	topicProgress = "recorder:progress"
	topicError    = "recorder:error"
	topicEnd      = "recorder:end"
)

// Handlers run synchronously on the recorder's goroutines, one at a time.
// They may call Stop but must not subscribe, unsubscribe or Wait.

// OnStart registers fn for the moment ffmpeg has been spawned.
func (r *Recorder) OnStart(fn func()) (unsubscribe func()) {
	return r.subscribe(topicStart, fn, fn == nil)
}

// OnProgress registers fn for ffmpeg progress reports.
func (r *Recorder) OnProgress(fn func(Progress)) (unsubscribe func()) {
	return r.subscribe(topicProgress, fn, fn == nil)
}

// OnError registers fn for a recording that ended in failure.
func (r *Recorder) OnError(fn func(error)) (unsubscribe func()) {
	return r.subscribe(topicError, fn, fn == nil)
}

// OnEnd registers fn for a recording that ended cleanly or by Stop.
func (r *Recorder) OnEnd(fn func()) (unsubscribe func()) {
	return r.subscribe(topicEnd, fn, fn == nil)
}

func (r *Recorder) subscribe(topic string, fn any, isNil bool) func() {
	if isNil {
		return func() {}
	}
	if err := r.bus.Subscribe(topic, fn); err != nil {
		r.log.Warn("subscribe %s: %v", topic, err)
		return func() {}
	}
	return func() { _ = r.bus.Unsubscribe(topic, fn) }
}

// publish serializes emission so subscribers observe start, progress and the
// terminal event in order. Nothing is published after a terminal event.
func (r *Recorder) publish(topic string, args ...any) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	if r.terminated {
		return
	}
	if topic == topicEnd || topic == topicError {
		r.terminated = true
	}
	r.bus.Publish(topic, args...)
}
