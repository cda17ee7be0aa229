package pmcc_test

import (
	"errors"
	"testing"

	"github.com/pmccbot/position-engine/internal/pmcc"
)

func TestCapacityPolicy_Check(t *testing.T) {
	policy := pmcc.NewCapacityPolicy(1)

	tests := []struct {
		name      string
		parent    int64
		committed int64
		requested int64
		wantErr   error
	}{
		{"first short fits", 2, 0, 1, nil},
		{"fills exactly", 2, 1, 1, nil},
		{"over capacity", 2, 2, 1, pmcc.ErrOverCommitted},
		{"requested exceeds parent", 2, 0, 3, pmcc.ErrQuantityExceedsParent},
		{"single contract full", 1, 1, 1, pmcc.ErrOverCommitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.parent, tt.committed, tt.requested)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Check(%d, %d, %d) = %v, want nil", tt.parent, tt.committed, tt.requested, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check(%d, %d, %d) = %v, want %v", tt.parent, tt.committed, tt.requested, err, tt.wantErr)
			}
		})
	}
}

func TestNewCapacityPolicy_FloorsAtOne(t *testing.T) {
	policy := pmcc.NewCapacityPolicy(0)
	if policy.MaxShortsPerContract != 1 {
		t.Errorf("MaxShortsPerContract = %d, want 1", policy.MaxShortsPerContract)
	}
}
