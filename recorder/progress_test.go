package recorder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(p *progressParser, block string) []Progress {
	var out []Progress
	for _, line := range strings.Split(block, "\n") {
		if pr, ok := p.feed(line); ok {
			out = append(out, pr)
		}
	}
	return out
}

func TestProgressParser(t *testing.T) {
	var p progressParser
	got := feedAll(&p, `frame=120
fps=29.97
stream_0_0_q=-1.0
bitrate=5921.3kbits/s
total_size=3145728
out_time_us=4000000
out_time_ms=4000000
out_time=00:00:04.000000
dup_frames=0
drop_frames=0
speed=1.01x
progress=continue`)

	require.Len(t, got, 1)
	assert.Equal(t, int64(120), got[0].Frames)
	assert.InDelta(t, 29.97, got[0].CurrentFPS, 0.001)
	assert.InDelta(t, 5921.3, got[0].CurrentKbps, 0.001)
	assert.Equal(t, int64(3072), got[0].TargetSize)
	assert.Equal(t, "00:00:04.000000", got[0].Timemark)
	assert.Nil(t, got[0].Percent)
}

func TestProgressParser_NotAvailable(t *testing.T) {
	var p progressParser
	got := feedAll(&p, "frame=1\nbitrate=N/A\ntotal_size=N/A\nout_time=N/A\nprogress=continue\n")

	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Frames)
	assert.Zero(t, got[0].CurrentKbps)
	assert.Zero(t, got[0].TargetSize)
	assert.Empty(t, got[0].Timemark)
}

func TestProgressParser_MultipleBlocks(t *testing.T) {
	var p progressParser
	got := feedAll(&p, "frame=10\nprogress=continue\nframe=20\nbitrate=100.0kbits/s\nprogress=end\n")

	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].Frames)
	assert.Equal(t, int64(20), got[1].Frames)
	assert.InDelta(t, 100.0, got[1].CurrentKbps, 0.001)
}

func TestProgressParser_IgnoresNoise(t *testing.T) {
	var p progressParser
	got := feedAll(&p, "garbage\n\nframe=abc\n")
	assert.Empty(t, got)
}
