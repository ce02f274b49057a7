package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/whisper-darkly/twitch-recorder/units"
)

const (
	playlistName   = "playlist.m3u8"
	segmentPattern = "%d.ts"
)

// ffmpegArgs builds the full ffmpeg command line for copying uri into target.
// Progress reports go to fd 3.
func ffmpegArgs(uri string, target Target, segment time.Duration) []string {
	args := []string{
		"-hide_banner", "-nostats",
		"-loglevel", "info",
		"-progress", "pipe:3",
		"-i", uri,
		"-c:v", "copy",
		"-c:a", "copy",
	}

	if target.Dir() != "" {
		return append(args,
			"-f", "hls",
			"-hls_time", units.Seconds(segment),
			"-hls_list_size", "0",
			"-hls_segment_filename", filepath.Join(target.Dir(), segmentPattern),
			filepath.Join(target.Dir(), playlistName),
		)
	}
	return append(args, "-f", "mpegts", "pipe:1")
}

// process is a started ffmpeg with the read end of its progress pipe.
type process struct {
	cmd      *exec.Cmd
	progress *os.File
}

// spawn starts ffmpeg in its own process group. stderr receives the
// process's diagnostic output.
func spawn(bin string, args []string, target Target, stderr io.Writer) (*process, error) {
	if dir := target.Dir(); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("progress pipe: %w", err)
	}

	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.ExtraFiles = []*os.File{pw}
	cmd.Stderr = stderr
	if sink := target.Sink(); sink != nil {
		cmd.Stdout = sink
	}

	err = cmd.Start()
	_ = pw.Close()
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &process{cmd: cmd, progress: pr}, nil
}

// signalProcess signals proc's group unless proc has already been reaped, in
// which case its pid may belong to something else by now.
func signalProcess(proc *process, sig syscall.Signal) error {
	if err := proc.cmd.Process.Signal(syscall.Signal(0)); errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return signalGroup(proc.cmd.Process.Pid, sig)
}

// signalGroup delivers sig to the whole process group led by pid. A group
// that is already gone is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
