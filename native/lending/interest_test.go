package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestCalculateReward(t *testing.T) {
	cases := []struct {
		name      string
		start     uint64
		apy       uint16
		now       uint64
		principal uint64
		want      uint64
	}{
		{name: "zero elapsed", start: 100, apy: 10, now: 100, principal: 1_000, want: 0},
		{name: "zero apy", start: 0, apy: 0, now: SecondsPerYear, principal: 1_000, want: 0},
		{name: "full year", start: 0, apy: 10, now: SecondsPerYear, principal: 1_000, want: 10_000},
		{name: "one day", start: 0, apy: 12, now: 86_400, principal: 1_000_000, want: 32_876},
		{name: "floors fractions", start: 0, apy: 10, now: 63_071, principal: 50, want: 0},
		{name: "exact unit", start: 0, apy: 10, now: 63_072, principal: 50, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateReward(tc.start, tc.apy, tc.now, uint256.NewInt(tc.principal))
			if err != nil {
				t.Fatalf("reward: %v", err)
			}
			if got.Uint64() != tc.want {
				t.Fatalf("expected %d, got %s", tc.want, got.Dec())
			}
		})
	}
}

func TestCalculateRewardRejectsBackwardsClock(t *testing.T) {
	if _, err := CalculateReward(10, 5, 9, uint256.NewInt(1)); !errors.Is(err, ErrClockBeforeStart) {
		t.Fatalf("expected clock error, got %v", err)
	}
}

func TestCalculateRewardDetectsOverflow(t *testing.T) {
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 250)
	if _, err := CalculateReward(0, 100, 1<<20, huge); !errors.Is(err, ErrRewardOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestSplitRewardConserves(t *testing.T) {
	reward := uint256.NewInt(997)
	for split := uint64(0); split <= MaxInterestSplit; split++ {
		owner, admin, err := SplitReward(reward, split)
		if err != nil {
			t.Fatalf("split %d: %v", split, err)
		}
		sum := new(uint256.Int).Add(owner, admin)
		if !sum.Eq(reward) {
			t.Fatalf("split %d: %s + %s != %s", split, owner.Dec(), admin.Dec(), reward.Dec())
		}
		if owner.Uint64() != 997*split/100 {
			t.Fatalf("split %d: owner share %s", split, owner.Dec())
		}
	}
	if _, _, err := SplitReward(reward, 101); !errors.Is(err, ErrInvalidInterestSplit) {
		t.Fatalf("expected invalid split, got %v", err)
	}
}
