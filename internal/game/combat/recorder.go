package combat

import (
	"fmt"
	"time"
)

// Segment is a closed time window of recorded events.
type Segment struct {
	Index          int              `json:"index"`
	Start          time.Duration    `json:"start"`
	End            time.Duration    `json:"end"`
	Events         int64            `json:"events"`
	Damage         int64            `json:"damage"`
	DamageBySource map[string]int64 `json:"damage_by_source,omitempty"`
}

func (s Segment) clone() Segment {
	if s.DamageBySource != nil {
		m := make(map[string]int64, len(s.DamageBySource))
		for k, v := range s.DamageBySource {
			m[k] = v
		}
		s.DamageBySource = m
	}
	return s
}

// Totals aggregates everything a Recorder has seen.
type Totals struct {
	Events         int64            `json:"events"`
	Damage         int64            `json:"damage"`
	DamageBySource map[string]int64 `json:"damage_by_source,omitempty"`
}

// Recorder buckets events into grid-aligned windows of a fixed width.
// Closed segments are never mutated.
type Recorder struct {
	window   time.Duration
	retain   bool
	segments []Segment
	open     Segment
	closed   int
	totals   Totals
	finished bool
}

// NewRecorder creates a recorder with its first window open at t=0. With
// retain false, closed segments are counted but discarded.
//
// Precondition: window > 0.
func NewRecorder(window time.Duration, retain bool) *Recorder {
	return &Recorder{
		window: window,
		retain: retain,
		open:   Segment{Start: 0, End: window},
		totals: Totals{DamageBySource: make(map[string]int64)},
	}
}

// Record adds amount tagged with source to the window containing at. A
// finished recorder ignores it.
func (r *Recorder) Record(source string, amount int64, at time.Duration) {
	if r.finished {
		return
	}
	r.AdvanceTo(at)
	if r.open.DamageBySource == nil {
		r.open.DamageBySource = make(map[string]int64)
	}
	r.open.Damage += amount
	r.open.DamageBySource[source] += amount
	r.totals.Damage += amount
	r.totals.DamageBySource[source] += amount
}

// RecordEvent counts one event in the window containing at.
func (r *Recorder) RecordEvent(at time.Duration) {
	if r.finished {
		return
	}
	r.AdvanceTo(at)
	r.open.Events++
	r.totals.Events++
}

// AdvanceTo closes every window that ends at or before at.
func (r *Recorder) AdvanceTo(at time.Duration) {
	if r.finished {
		return
	}
	for r.open.End <= at {
		if !r.retain && r.open.Events == 0 && r.open.Damage == 0 {
			// Skip straight to the window containing at.
			n := (at - r.open.Start) / r.window
			r.closed += int(n)
			r.open = Segment{Index: r.closed, Start: r.open.Start + n*r.window}
			r.open.End = r.open.Start + r.window
			continue
		}
		r.CloseWindow(r.open.End)
	}
}

// CloseWindow finalizes the open window at at and opens the next one.
// Closing before the window's grid end produces a short final segment.
func (r *Recorder) CloseWindow(at time.Duration) {
	seg := r.open
	seg.End = at
	if seg.End < seg.Start {
		seg.End = seg.Start
	}
	if r.retain {
		r.segments = append(r.segments, seg)
	}
	r.closed++
	r.open = Segment{Index: r.closed, Start: seg.End, End: seg.End + r.window}
	if rem := seg.End % r.window; rem != 0 {
		r.open.End = seg.End - rem + r.window
	}
}

// Finish closes the recorder at the terminal time. The open window is
// closed if it holds events or spans time.
func (r *Recorder) Finish(at time.Duration) {
	if r.finished {
		return
	}
	r.AdvanceTo(at)
	if at > r.open.Start || r.open.Events > 0 || r.open.Damage > 0 {
		r.CloseWindow(at)
	}
	r.finished = true
}

// ReadSince returns copies of the closed segments with index >= cursor.
func (r *Recorder) ReadSince(cursor int) []Segment {
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(r.segments) {
		return nil
	}
	out := make([]Segment, 0, len(r.segments)-cursor)
	for _, s := range r.segments[cursor:] {
		out = append(out, s.clone())
	}
	return out
}

// Closed returns the number of windows closed so far.
func (r *Recorder) Closed() int { return r.closed }

// Provisional returns a copy of the open window ending at at, without closing it.
func (r *Recorder) Provisional(at time.Duration) (Segment, bool) {
	if r.finished || (r.open.Events == 0 && r.open.Damage == 0 && at <= r.open.Start) {
		return Segment{}, false
	}
	seg := r.open.clone()
	if at < seg.End {
		seg.End = at
	}
	return seg, true
}

// Totals returns a copy of the running totals.
func (r *Recorder) Totals() Totals {
	t := r.totals
	t.DamageBySource = make(map[string]int64, len(r.totals.DamageBySource))
	for k, v := range r.totals.DamageBySource {
		t.DamageBySource[k] = v
	}
	return t
}

// recorderState is the serialized form of a Recorder.
type recorderState struct {
	Window   time.Duration `json:"window"`
	Retain   bool          `json:"retain"`
	Segments []Segment     `json:"segments"`
	Open     Segment       `json:"open"`
	Closed   int           `json:"closed"`
	Totals   Totals        `json:"totals"`
	Finished bool          `json:"finished"`
}

func (r *Recorder) state() recorderState {
	segs := make([]Segment, len(r.segments))
	for i, s := range r.segments {
		segs[i] = s.clone()
	}
	return recorderState{
		Window:   r.window,
		Retain:   r.retain,
		Segments: segs,
		Open:     r.open.clone(),
		Closed:   r.closed,
		Totals:   r.Totals(),
		Finished: r.finished,
	}
}

func restoreRecorder(st recorderState) (*Recorder, error) {
	if st.Window <= 0 {
		return nil, fmt.Errorf("recorder window must be > 0")
	}
	if st.Retain && len(st.Segments) != st.Closed {
		return nil, fmt.Errorf("recorder holds %d segments but closed %d", len(st.Segments), st.Closed)
	}
	if st.Open.Index != st.Closed || st.Open.End <= st.Open.Start {
		return nil, fmt.Errorf("recorder open window is inconsistent")
	}
	if st.Totals.DamageBySource == nil {
		st.Totals.DamageBySource = make(map[string]int64)
	}
	return &Recorder{
		window:   st.Window,
		retain:   st.Retain,
		segments: st.Segments,
		open:     st.Open,
		closed:   st.Closed,
		totals:   st.Totals,
		finished: st.Finished,
	}, nil
}
