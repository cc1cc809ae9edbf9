package combat

import (
	"container/heap"
	"fmt"
	"time"
)

// ActionKind tags a scheduled action. The set is closed; the loop matches it
// exhaustively.
type ActionKind int

const (
	ActionUnknown      ActionKind = iota // zero value; intentionally invalid
	ActionAttackFire                     // basic track fires
	ActionSpecialFire                    // special track fires
	ActionProcPulse                      // rppm proc pulse; reschedules itself
	ActionEffectExpiry                   // an applied effect ends
	ActionDotTick                        // a damage-over-time effect ticks
)

// String returns the action kind label.
func (k ActionKind) String() string {
	switch k {
	case ActionAttackFire:
		return "attack-fire"
	case ActionSpecialFire:
		return "special-fire"
	case ActionProcPulse:
		return "proc-pulse"
	case ActionEffectExpiry:
		return "effect-expiry"
	case ActionDotTick:
		return "dot-tick"
	default:
		return "unknown"
	}
}

// SelfTarget is the Target value of effect actions on the attacker.
const SelfTarget = -1

// Action is one pending unit of work.
//
// Seq breaks ties between actions at the same time in enqueue order.
type Action struct {
	At   time.Duration `json:"at"`
	Seq  uint64        `json:"seq"`
	Kind ActionKind    `json:"kind"`
	// Track is the track index for fire actions.
	Track int `json:"track,omitempty"`
	// Ref is the proc id for pulses and the effect id for expiries and ticks.
	Ref string `json:"ref,omitempty"`
	// Target is the group index of the bearer, or SelfTarget.
	Target int `json:"target,omitempty"`
	// Generation identifies the effect application an expiry belongs to, or
	// the tick chain a DoT tick belongs to.
	Generation uint64 `json:"generation,omitempty"`
}

// validate checks the kind-specific fields.
func (a Action) validate() error {
	switch a.Kind {
	case ActionAttackFire, ActionSpecialFire:
		if a.Track < 0 {
			return fmt.Errorf("action %d: negative track", a.Seq)
		}
	case ActionProcPulse, ActionEffectExpiry, ActionDotTick:
		if a.Ref == "" {
			return fmt.Errorf("action %d (%s): empty ref", a.Seq, a.Kind)
		}
	default:
		return fmt.Errorf("action %d: unknown kind %d", a.Seq, a.Kind)
	}
	if a.At < 0 {
		return fmt.Errorf("action %d: negative time", a.Seq)
	}
	return nil
}

// actionHeap orders actions by (At, Seq).
type actionHeap []Action

func (h actionHeap) Len() int { return len(h) }
func (h actionHeap) Less(i, j int) bool {
	if h[i].At != h[j].At {
		return h[i].At < h[j].At
	}
	return h[i].Seq < h[j].Seq
}
func (h actionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *actionHeap) Push(x any)   { *h = append(*h, x.(Action)) }
func (h *actionHeap) Pop() any {
	old := *h
	n := len(old)
	a := old[n-1]
	*h = old[:n-1]
	return a
}

// Queue is the time-ordered set of pending actions.
type Queue struct {
	h   actionHeap
	seq uint64
}

// Schedule enqueues a with the next sequence number.
//
// Postcondition: Returns the stored action with Seq assigned.
func (q *Queue) Schedule(a Action) Action {
	q.seq++
	a.Seq = q.seq
	heap.Push(&q.h, a)
	return a
}

// Peek returns the earliest action without removing it.
func (q *Queue) Peek() (Action, bool) {
	if len(q.h) == 0 {
		return Action{}, false
	}
	return q.h[0], true
}

// Pop removes and returns the earliest action.
func (q *Queue) Pop() (Action, bool) {
	if len(q.h) == 0 {
		return Action{}, false
	}
	return heap.Pop(&q.h).(Action), true
}

// Len returns the number of pending actions.
func (q *Queue) Len() int { return len(q.h) }

// Seq returns the last assigned sequence number.
func (q *Queue) Seq() uint64 { return q.seq }

// Pending returns the pending actions ordered by (At, Seq).
func (q *Queue) Pending() []Action {
	cp := make(actionHeap, len(q.h))
	copy(cp, q.h)
	out := make([]Action, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(Action))
	}
	return out
}

// restoreQueue rebuilds a queue from pending actions and the last sequence number.
func restoreQueue(pending []Action, seq uint64) (*Queue, error) {
	q := &Queue{seq: seq}
	seen := make(map[uint64]bool, len(pending))
	for _, a := range pending {
		if err := a.validate(); err != nil {
			return nil, err
		}
		if a.Seq == 0 || a.Seq > seq || seen[a.Seq] {
			return nil, fmt.Errorf("action seq %d invalid for queue seq %d", a.Seq, seq)
		}
		seen[a.Seq] = true
		q.h = append(q.h, a)
	}
	heap.Init(&q.h)
	return q, nil
}
