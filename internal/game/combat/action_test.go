package combat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/idlebattle/internal/game/combat"
)

func TestActionKind_String(t *testing.T) {
	assert.Equal(t, "attack-fire", combat.ActionAttackFire.String())
	assert.Equal(t, "special-fire", combat.ActionSpecialFire.String())
	assert.Equal(t, "proc-pulse", combat.ActionProcPulse.String())
	assert.Equal(t, "effect-expiry", combat.ActionEffectExpiry.String())
	assert.Equal(t, "dot-tick", combat.ActionDotTick.String())
	assert.Equal(t, "unknown", combat.ActionUnknown.String())
}

func TestQueue_TiesBreakInEnqueueOrder(t *testing.T) {
	var q combat.Queue
	q.Schedule(combat.Action{At: time.Second, Kind: combat.ActionProcPulse, Ref: "b"})
	q.Schedule(combat.Action{At: 0, Kind: combat.ActionAttackFire})
	q.Schedule(combat.Action{At: time.Second, Kind: combat.ActionProcPulse, Ref: "c"})
	q.Schedule(combat.Action{At: 0, Kind: combat.ActionSpecialFire, Track: 1})

	require.Equal(t, 4, q.Len())
	assert.Equal(t, uint64(4), q.Seq())

	pending := q.Pending()
	require.Len(t, pending, 4)
	assert.Equal(t, q.Len(), 4, "Pending must not drain the queue")

	var kinds []combat.ActionKind
	var refs []string
	for {
		a, ok := q.Pop()
		if !ok {
			break
		}
		kinds = append(kinds, a.Kind)
		refs = append(refs, a.Ref)
	}
	assert.Equal(t, []combat.ActionKind{combat.ActionAttackFire, combat.ActionSpecialFire, combat.ActionProcPulse, combat.ActionProcPulse}, kinds)
	assert.Equal(t, []string{"", "", "b", "c"}, refs)
	for i := range pending {
		assert.Equal(t, kinds[i], pending[i].Kind)
	}
}

func TestQueue_EmptyPeekAndPop(t *testing.T) {
	var q combat.Queue
	_, ok := q.Peek()
	assert.False(t, ok)
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Empty(t, q.Pending())
}

func TestProperty_Queue_PopsInTimeThenSeqOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		times := rapid.SliceOfN(rapid.Int64Range(0, 20), 1, 60).Draw(rt, "times")
		var q combat.Queue
		for _, at := range times {
			q.Schedule(combat.Action{At: time.Duration(at) * time.Second, Kind: combat.ActionAttackFire})
		}
		prev, ok := q.Pop()
		require.True(rt, ok)
		for q.Len() > 0 {
			a, _ := q.Pop()
			if a.At == prev.At {
				assert.Greater(rt, a.Seq, prev.Seq)
			} else {
				assert.Greater(rt, a.At, prev.At)
			}
			prev = a
		}
	})
}
