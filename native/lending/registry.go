package lending

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

func sanitizeCollection(c *Collection) error {
	if c == nil {
		return ErrInvalidCollection
	}
	if c.Contract.IsZero() {
		return ErrInvalidCollection
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.FloorPrice == nil {
		c.FloorPrice = new(uint256.Int)
	}
	return nil
}

// requireAdmin rejects attached funds and any caller other than the admin.
func requireAdmin(st *store, env Env) (*Params, error) {
	if err := NonPayable(env.Funds); err != nil {
		return nil, err
	}
	params, err := st.params()
	if err != nil {
		return nil, err
	}
	if !env.Caller.Equal(params.Admin) {
		return nil, ErrNotAdmin
	}
	return params, nil
}

// UpsertCollection adds a collection or replaces the one stored under the same
// id. Existing offers keep pointing at the id and pick up the new terms.
func (e *Engine) UpsertCollection(env Env, collection Collection) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		if _, err := requireAdmin(st, env); err != nil {
			return nil, err
		}
		c := collection.Clone()
		if err := sanitizeCollection(c); err != nil {
			return nil, err
		}
		if err := st.putCollection(c); err != nil {
			return nil, err
		}
		res := newResult(ActionAddCollection)
		res.Attributes["collection_id"] = strconv.FormatUint(uint64(c.ID), 10)
		res.addEvent(NewCollectionUpsertedEvent(c))
		return res, nil
	})
}

// UpdateFloorPrice changes the lending cap of an existing collection. Offers
// already posted above the new floor are left as they are.
func (e *Engine) UpdateFloorPrice(env Env, collectionID uint16, price *uint256.Int) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		if _, err := requireAdmin(st, env); err != nil {
			return nil, err
		}
		if price == nil {
			return nil, ErrInvalidAmount
		}
		c, err := st.collection(collectionID)
		if err != nil {
			return nil, err
		}
		previous := c.FloorPrice.Dec()
		c.FloorPrice = new(uint256.Int).Set(price)
		if err := st.putCollection(c); err != nil {
			return nil, err
		}
		res := newResult(ActionUpdateFloorPrice)
		res.Attributes["collection_id"] = strconv.FormatUint(uint64(c.ID), 10)
		res.Attributes["floor_price"] = c.FloorPrice.Dec()
		res.addEvent(NewFloorPriceUpdatedEvent(c, previous))
		return res, nil
	})
}
