package lending

import (
	"strings"

	"github.com/holiman/uint256"
)

// MustPay checks that funds hold exactly one non-zero coin of denom whose
// amount equals required.
func MustPay(funds []Coin, denom string, required *uint256.Int) error {
	if len(funds) != 1 {
		return ErrDepositFail
	}
	coin := funds[0]
	if strings.TrimSpace(coin.Denom) != strings.TrimSpace(denom) {
		return ErrDepositFail
	}
	if coin.Amount == nil || coin.Amount.IsZero() {
		return ErrDepositFail
	}
	if required == nil || !coin.Amount.Eq(required) {
		return ErrNotExactAmount
	}
	return nil
}

// NonPayable rejects any non-zero attached coin.
func NonPayable(funds []Coin) error {
	for _, coin := range funds {
		if coin.Amount != nil && !coin.Amount.IsZero() {
			return ErrUnexpectedFunds
		}
	}
	return nil
}

func attachedCoins(funds []Coin) []Coin {
	out := make([]Coin, 0, len(funds))
	for _, coin := range funds {
		if coin.Amount == nil || coin.Amount.IsZero() {
			continue
		}
		out = append(out, Coin{Denom: strings.TrimSpace(coin.Denom), Amount: new(uint256.Int).Set(coin.Amount)})
	}
	return out
}
