package chat

import "time"

const (
	defaultBacklogSize = 20
	maxBacklogSessions = 1024
	backlogTTL         = time.Hour
)

type queuedFrame struct {
	frame Frame
	at    time.Time
}

// frameRing is a fixed-size circular buffer of frames. When full, the
// oldest frame is overwritten.
type frameRing struct {
	buf  []queuedFrame
	head int // write position
	tail int // read position
	full bool
}

func newFrameRing(size int) *frameRing {
	if size <= 0 {
		size = defaultBacklogSize
	}
	return &frameRing{buf: make([]queuedFrame, size)}
}

func (r *frameRing) push(f queuedFrame) {
	if r.full {
		r.tail = (r.tail + 1) % len(r.buf)
	}
	r.buf[r.head] = f
	r.head = (r.head + 1) % len(r.buf)
	if r.head == r.tail {
		r.full = true
	}
}

func (r *frameRing) len() int {
	switch {
	case r.full:
		return len(r.buf)
	case r.head >= r.tail:
		return r.head - r.tail
	default:
		return len(r.buf) - r.tail + r.head
	}
}

// drain returns the frames oldest first and empties the ring.
func (r *frameRing) drain() []queuedFrame {
	n := r.len()
	out := make([]queuedFrame, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(r.tail+i)%len(r.buf)])
	}
	for i := range r.buf {
		r.buf[i] = queuedFrame{}
	}
	r.head, r.tail, r.full = 0, 0, false
	return out
}
