package pmcc

import (
	"errors"
	"fmt"
)

var (
	// ErrQuantityExceedsParent is returned when a single short call's
	// quantity is larger than its parent LEAPS quantity.
	ErrQuantityExceedsParent = errors.New("pmcc: short call quantity exceeds parent LEAPS quantity")

	// ErrOverCommitted is returned when a new short call would push the
	// aggregate active short quantity under one LEAPS past its capacity.
	ErrOverCommitted = errors.New("pmcc: LEAPS position is fully committed")
)

// CapacityPolicy enforces the per-parent quantity cap: the sum of active
// short-call quantity under one LEAPS may not exceed the LEAPS quantity
// times MaxShortsPerContract. Writing multiple short calls across rolls is
// a deliberate strategy move, so the check can be overridden per call.
type CapacityPolicy struct {
	// MaxShortsPerContract is the allowed simultaneously active short
	// quantity per unit of LEAPS quantity. Default 1.
	MaxShortsPerContract int64
}

// NewCapacityPolicy creates a policy with the given per-contract cap.
func NewCapacityPolicy(maxPerContract int64) *CapacityPolicy {
	if maxPerContract < 1 {
		maxPerContract = 1
	}
	return &CapacityPolicy{MaxShortsPerContract: maxPerContract}
}

// Check validates adding requested contracts against a LEAPS holding
// parentQty contracts with committed active short contracts already open.
func (p *CapacityPolicy) Check(parentQty, committed, requested int64) error {
	if requested > parentQty {
		return fmt.Errorf("%w: requested %d, parent holds %d",
			ErrQuantityExceedsParent, requested, parentQty)
	}

	capacity := parentQty * p.MaxShortsPerContract
	if committed+requested > capacity {
		return fmt.Errorf("%w: %d active + %d requested > capacity %d",
			ErrOverCommitted, committed, requested, capacity)
	}
	return nil
}
