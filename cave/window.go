package cave

import (
	"fmt"
	"sync"
)

// Segment is the open gap of the cave at one depth step.
type Segment struct {
	Index int
	Left  int
	Right int
}

// Window is a bounded FIFO of segments with contiguous indices. Only the
// stream appends to it; readers take snapshots.
type Window struct {
	mu       sync.RWMutex
	capacity int
	segs     []Segment
	next     int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{capacity: capacity, segs: make([]Segment, 0, capacity)}
}

// Append stores a new segment with the next index, evicting the oldest one
// when the window is full.
func (w *Window) Append(left, right int) (Segment, error) {
	if left >= right {
		return Segment{}, fmt.Errorf("segment %d,%d: left must be < right", left, right)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Segment{Index: w.next, Left: left, Right: right}
	w.next++
	if len(w.segs) == w.capacity {
		copy(w.segs, w.segs[1:])
		w.segs[len(w.segs)-1] = s
	} else {
		w.segs = append(w.segs, s)
	}
	return s, nil
}

func (w *Window) At(index int) (Segment, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return lookup(w.segs, index)
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.segs)
}

func (w *Window) Capacity() int { return w.capacity }

// Snapshot copies the current contents.
func (w *Window) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Segment, len(w.segs))
	copy(out, w.segs)
	return Snapshot{Segments: out}
}

// Snapshot is an immutable view of a window at one instant.
type Snapshot struct {
	Segments []Segment
}

func (s Snapshot) At(index int) (Segment, bool) {
	return lookup(s.Segments, index)
}

func lookup(segs []Segment, index int) (Segment, bool) {
	if len(segs) == 0 {
		return Segment{}, false
	}
	i := index - segs[0].Index
	if i < 0 || i >= len(segs) {
		return Segment{}, false
	}
	return segs[i], true
}
