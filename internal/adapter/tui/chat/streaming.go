package chat

import (
	"fmt"
	"time"
)

// StreamSpeed controls how fast an answer is revealed in the transcript.
// Agents return whole answers, so reveal is simulated.
type StreamSpeed int

const (
	StreamNormal StreamSpeed = iota
	StreamFast
	StreamInstant
)

func (s StreamSpeed) String() string {
	switch s {
	case StreamInstant:
		return "instant"
	case StreamFast:
		return "fast"
	case StreamNormal:
		return "normal"
	default:
		return fmt.Sprintf("StreamSpeed(%d)", int(s))
	}
}

// ParseStreamSpeed maps a name to a StreamSpeed.
func ParseStreamSpeed(s string) (StreamSpeed, bool) {
	switch s {
	case "normal":
		return StreamNormal, true
	case "fast":
		return StreamFast, true
	case "instant":
		return StreamInstant, true
	}
	return StreamNormal, false
}

// next cycles normal, fast, instant.
func (s StreamSpeed) next() StreamSpeed {
	switch s {
	case StreamNormal:
		return StreamFast
	case StreamFast:
		return StreamInstant
	default:
		return StreamNormal
	}
}

// chunk is runes per tick; zero reveals everything at once.
func (s StreamSpeed) chunk() int {
	switch s {
	case StreamNormal:
		return 8
	case StreamFast:
		return 32
	default:
		return 0
	}
}

const tickRate = 16 * time.Millisecond

// typewriter reveals text a rune chunk at a time.
type typewriter struct {
	full  []rune
	shown int
	step  int
}

func newTypewriter(text string, speed StreamSpeed) *typewriter {
	tw := &typewriter{full: []rune(text), step: speed.chunk()}
	if tw.step <= 0 {
		tw.shown = len(tw.full)
	}
	return tw
}

// advance reveals the next chunk and reports the visible text and whether
// the whole text is now shown.
func (t *typewriter) advance() (string, bool) {
	if t.shown < len(t.full) {
		t.shown = min(t.shown+t.step, len(t.full))
	}
	return string(t.full[:t.shown]), t.done()
}

func (t *typewriter) done() bool { return t.shown >= len(t.full) }

// finish reveals the remainder.
func (t *typewriter) finish() string {
	t.shown = len(t.full)
	return string(t.full)
}
