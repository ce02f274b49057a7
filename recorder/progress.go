package recorder

import (
	"strconv"
	"strings"
)

// Progress is one ffmpeg progress report.
type Progress struct {
	Frames      int64    `json:"frames"`
	CurrentFPS  float64  `json:"current_fps"`
	CurrentKbps float64  `json:"current_kbps"`
	TargetSize  int64    `json:"target_size_kb"`
	Timemark    string   `json:"timemark"`
	Percent     *float64 `json:"percent,omitempty"` // nil for live input
}

// progressParser folds ffmpeg -progress key=value lines into Progress values.
// A block is complete at its "progress=" line.
type progressParser struct {
	cur Progress
}

func (p *progressParser) feed(line string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Progress{}, false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "frame":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.cur.Frames = n
		}
	case "fps":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			p.cur.CurrentFPS = f
		}
	case "bitrate":
		p.cur.CurrentKbps = 0
		if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "kbits/s"), 64); err == nil {
			p.cur.CurrentKbps = f
		}
	case "total_size":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.cur.TargetSize = n / 1024
		}
	case "out_time":
		if value != "N/A" {
			p.cur.Timemark = value
		}
	case "progress":
		out := p.cur
		return out, true
	}
	return Progress{}, false
}
