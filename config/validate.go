package config

import (
	"fmt"

	"github.com/holiman/uint256"

	"foxylend/crypto"
	"foxylend/native/lending"
)

const DefaultDenom = lending.DefaultDenom

// ValidateGenesis checks addresses, amounts and the interest split without
// touching any store.
func ValidateGenesis(g *Genesis) error {
	_, err := g.ToLending()
	return err
}

// ToLending converts the file representation into the engine's genesis.
func (g *Genesis) ToLending() (*lending.Genesis, error) {
	if g == nil {
		return nil, fmt.Errorf("genesis: missing")
	}
	admin, err := decodeRequired("admin", g.Admin)
	if err != nil {
		return nil, err
	}
	custodian, err := decodeRequired("custodian", g.Custodian)
	if err != nil {
		return nil, err
	}
	if g.InterestSplit > lending.MaxInterestSplit {
		return nil, fmt.Errorf("genesis: interest_split %d exceeds %d", g.InterestSplit, lending.MaxInterestSplit)
	}
	denom := g.Denom
	if denom == "" {
		denom = DefaultDenom
	}
	out := &lending.Genesis{
		Params: lending.Params{
			Admin:         admin,
			InterestSplit: g.InterestSplit,
			Denom:         denom,
			Custodian:     custodian,
		},
		Collections: make([]lending.Collection, 0, len(g.Collections)),
	}
	seen := make(map[uint16]struct{}, len(g.Collections))
	for _, c := range g.Collections {
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("genesis: duplicate collection id %d", c.ID)
		}
		seen[c.ID] = struct{}{}
		contract, err := decodeRequired(fmt.Sprintf("collection %d contract", c.ID), c.Contract)
		if err != nil {
			return nil, err
		}
		floor := new(uint256.Int)
		if c.FloorPrice != "" {
			floor, err = uint256.FromDecimal(c.FloorPrice)
			if err != nil {
				return nil, fmt.Errorf("genesis: collection %d floor price %q: %w", c.ID, c.FloorPrice, err)
			}
		}
		out.Collections = append(out.Collections, lending.Collection{
			ID:         c.ID,
			Name:       c.Name,
			FloorPrice: floor,
			APY:        c.APY,
			MaxTime:    c.MaxTime,
			Contract:   contract,
		})
	}
	return out, nil
}

func decodeRequired(field, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("genesis: %s: %w", field, err)
	}
	if addr.IsZero() {
		return crypto.Address{}, fmt.Errorf("genesis: %s required", field)
	}
	return addr, nil
}
