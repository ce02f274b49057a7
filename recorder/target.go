package recorder

import (
	"errors"
	"io"
)

// ErrInvalidTarget is returned by Start for a zero Target.
var ErrInvalidTarget = errors.New("recording target must be a directory or a sink")

// Target is where ffmpeg writes the recording: either an HLS directory
// (playlist.m3u8 plus numbered .ts segments) or a single MPEG-TS byte sink.
type Target struct {
	dir  string
	sink io.Writer
}

// DirectoryTarget writes an HLS playlist and its segments into path.
func DirectoryTarget(path string) Target { return Target{dir: path} }

// SinkTarget streams MPEG-TS into w.
func SinkTarget(w io.Writer) Target { return Target{sink: w} }

// Dir returns the output directory, or "" for a sink target.
func (t Target) Dir() string { return t.dir }

// Sink returns the output writer, or nil for a directory target.
func (t Target) Sink() io.Writer { return t.sink }

func (t Target) String() string {
	switch {
	case t.dir != "":
		return t.dir
	case t.sink != nil:
		return "pipe:1"
	default:
		return "<none>"
	}
}

func (t Target) validate() error {
	if (t.dir == "") == (t.sink == nil) {
		return ErrInvalidTarget
	}
	return nil
}
