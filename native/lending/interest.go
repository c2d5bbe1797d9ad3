package lending

import "github.com/holiman/uint256"

// SecondsPerYear is the fixed 365 day year used to pro-rate the APY.
const SecondsPerYear = 365 * 24 * 60 * 60

var secondsPerYear = uint256.NewInt(SecondsPerYear)

// CalculateReward returns principal*(now-start)*apy/SecondsPerYear using floor
// division. apy is an integer percentage applied to the principal, so an APY of
// 10 over a full year yields ten times the principal.
func CalculateReward(start uint64, apy uint16, now uint64, principal *uint256.Int) (*uint256.Int, error) {
	if now < start {
		return nil, ErrClockBeforeStart
	}
	if principal == nil || principal.IsZero() || apy == 0 || now == start {
		return new(uint256.Int), nil
	}
	elapsed := uint256.NewInt(now - start)
	product, overflow := new(uint256.Int).MulOverflow(principal, elapsed)
	if overflow {
		return nil, ErrRewardOverflow
	}
	product, overflow = product.MulOverflow(product, uint256.NewInt(uint64(apy)))
	if overflow {
		return nil, ErrRewardOverflow
	}
	return product.Div(product, secondsPerYear), nil
}

// SplitReward divides reward into the lender and admin shares. The lender gets
// floor(reward*split/100) and the admin the remainder, so the two shares always
// add back up to reward.
func SplitReward(reward *uint256.Int, split uint64) (owner, admin *uint256.Int, err error) {
	if split > MaxInterestSplit {
		return nil, nil, ErrInvalidInterestSplit
	}
	if reward == nil {
		return new(uint256.Int), new(uint256.Int), nil
	}
	owner, overflow := new(uint256.Int).MulOverflow(reward, uint256.NewInt(split))
	if overflow {
		return nil, nil, ErrRewardOverflow
	}
	owner.Div(owner, uint256.NewInt(MaxInterestSplit))
	admin = new(uint256.Int).Sub(reward, owner)
	return owner, admin, nil
}
