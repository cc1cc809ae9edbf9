package combat

import "fmt"

// TargetMode selects which group members a multi-target action hits.
type TargetMode string

const (
	// TargetPrimary hits the primary target only.
	TargetPrimary TargetMode = "primary"
	// TargetCleave hits living members in group order up to MaxTargets.
	TargetCleave TargetMode = "cleave"
	// TargetAll hits every living member.
	TargetAll TargetMode = "all"
)

// DistributeMode selects how a value is shared between targets.
type DistributeMode string

const (
	DistributeFull  DistributeMode = "full"
	DistributeSplit DistributeMode = "split"
)

// RemainderPolicy selects where an even split's integer remainder goes.
type RemainderPolicy string

const (
	RemainderPrimary    RemainderPolicy = "primary"
	RemainderRoundRobin RemainderPolicy = "round_robin"
)

// Targeting configures multi-target delivery for a track or proc.
type Targeting struct {
	Mode           TargetMode     `yaml:"mode" json:"mode"`
	MaxTargets     int            `yaml:"max_targets" json:"max_targets"` // 0 = no cap
	IncludePrimary *bool          `yaml:"include_primary" json:"include_primary,omitempty"`
	Distribute     DistributeMode `yaml:"distribute" json:"distribute"`
}

// includesPrimary defaults to true when unset.
func (t Targeting) includesPrimary() bool {
	return t.IncludePrimary == nil || *t.IncludePrimary
}

// Validate checks the targeting fields. The zero value is valid and means
// single-target, full value.
func (t Targeting) Validate() error {
	switch t.Mode {
	case "", TargetPrimary, TargetCleave, TargetAll:
	default:
		return fmt.Errorf("unknown target mode %q", t.Mode)
	}
	switch t.Distribute {
	case "", DistributeFull, DistributeSplit:
	default:
		return fmt.Errorf("unknown distribute mode %q", t.Distribute)
	}
	if t.MaxTargets < 0 {
		return fmt.Errorf("max_targets must be >= 0, got %d", t.MaxTargets)
	}
	return nil
}

// SelectTargets resolves the indices of group members hit by an action.
// alive reports whether member i is alive; primary is the primary target index.
//
// Postcondition: Returns a non-empty slice in group order. When no member
// qualifies, returns []int{primary}.
func SelectTargets(mode TargetMode, maxTargets int, alive []bool, primary int, includePrimary bool) []int {
	var out []int
	switch mode {
	case TargetCleave, TargetAll:
		for i, ok := range alive {
			if !ok || (!includePrimary && i == primary) {
				continue
			}
			if mode == TargetCleave && maxTargets > 0 && len(out) >= maxTargets {
				break
			}
			out = append(out, i)
		}
	default:
		if includePrimary && primary >= 0 && primary < len(alive) && alive[primary] {
			out = append(out, primary)
		}
	}
	if mode == TargetAll && maxTargets > 0 && len(out) > maxTargets {
		out = out[:maxTargets]
	}
	if len(out) == 0 {
		return []int{primary}
	}
	return out
}

// Distribute returns the per-target amounts of value across targets.
//
// With DistributeFull every target receives value. With DistributeSplit each
// target receives value/len(targets); under RemainderPrimary the remainder
// is added to the primary target only when the primary is in targets,
// otherwise it is dropped. Under RemainderRoundRobin the first remainder
// targets receive one extra point each.
//
// Precondition: targets must be non-empty.
func Distribute(mode DistributeMode, value int64, targets []int, primary int, policy RemainderPolicy) []int64 {
	out := make([]int64, len(targets))
	if mode != DistributeSplit {
		for i := range out {
			out[i] = value
		}
		return out
	}
	n := int64(len(targets))
	base, rem := value/n, value%n
	for i := range out {
		out[i] = base
	}
	switch policy {
	case RemainderRoundRobin:
		for i := int64(0); i < rem; i++ {
			out[i]++
		}
	default:
		for i, t := range targets {
			if t == primary {
				out[i] += rem
				break
			}
		}
	}
	return out
}
