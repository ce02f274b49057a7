package recorder

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrRecordingFailure matches every *FailureError.
var ErrRecordingFailure = errors.New("recording failed")

// FailureError describes an ffmpeg exit that was neither a clean end of
// stream nor the result of Stop.
type FailureError struct {
	ExitCode int      // -1 when the process was killed by a signal
	Signal   string   // signal name when killed by a signal
	Message  string   // one-line report
	Stderr   []string // last stderr lines
}

func (e *FailureError) Error() string { return e.Message }

func (e *FailureError) Is(target error) bool { return target == ErrRecordingFailure }

// exitReport is what is known about a finished ffmpeg process.
type exitReport struct {
	Code    int
	Signal  syscall.Signal // 0 unless the process was killed by a signal
	Message string
	Stderr  []string
}

const reportStderrLines = 20

func newExitReport(state *os.ProcessState, waitErr error, stderr []string) exitReport {
	r := exitReport{Stderr: stderr}

	if state != nil {
		r.Code = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			r.Signal = ws.Signal()
		}
	}

	var exitErr *exec.ExitError
	switch {
	case r.Signal != 0:
		r.Message = fmt.Sprintf("ffmpeg was killed with signal %s", signalName(r.Signal))
	case r.Code != 0:
		r.Message = fmt.Sprintf("ffmpeg exited with code %d", r.Code)
	case waitErr != nil && !errors.As(waitErr, &exitErr):
		r.Code = -1
		r.Message = fmt.Sprintf("ffmpeg wait failed: %v", waitErr)
	default:
		return r
	}
	if len(stderr) > 0 {
		r.Message += ": " + strings.Join(stderr, "\n")
	}
	return r
}

func (r exitReport) clean() bool {
	return r.Code == 0 && r.Signal == 0 && r.Message == ""
}

func (r exitReport) failure() *FailureError {
	f := &FailureError{ExitCode: r.Code, Message: r.Message, Stderr: r.Stderr}
	if r.Signal != 0 {
		f.Signal = signalName(r.Signal)
	}
	return f
}

// stoppedBySignal reports whether the exit described by r was caused by sig.
// A structured wait status is decisive. Otherwise the report text must name
// the signal, either as "SIGINT" or in ffmpeg's "received signal 2." form.
func stoppedBySignal(r exitReport, sig syscall.Signal) bool {
	if sig == 0 {
		return false
	}
	if r.Signal != 0 {
		return r.Signal == sig
	}
	if name := unix.SignalName(sig); name != "" && strings.Contains(r.Message, name) {
		return true
	}
	return strings.Contains(r.Message, fmt.Sprintf("received signal %d.", int(sig)))
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}
