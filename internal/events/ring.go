package events

import "fleetwatch/internal/models"

// ring is a fixed-capacity buffer of recent events that overwrites the oldest
// entry once full.
type ring struct {
	buf   []models.Event
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &ring{buf: make([]models.Event, capacity)}
}

func (r *ring) push(e models.Event) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// items returns the buffered events oldest first.
func (r *ring) items() []models.Event {
	out := make([]models.Event, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *ring) len() int {
	return r.size
}

func (r *ring) reset() {
	clear(r.buf)
	r.start = 0
	r.size = 0
}
