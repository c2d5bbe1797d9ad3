package lending

import (
	"strconv"

	"foxylend/crypto"
)

// UpdateAdmin hands the admin role to another address.
func (e *Engine) UpdateAdmin(env Env, admin crypto.Address) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		params, err := requireAdmin(st, env)
		if err != nil {
			return nil, err
		}
		if admin.IsZero() {
			return nil, ErrInvalidAddress
		}
		previous := params.Admin.String()
		params.Admin = admin
		if err := st.putParams(params); err != nil {
			return nil, err
		}
		res := newResult(ActionUpdateAdmin)
		res.Attributes["admin"] = admin.String()
		res.addEvent(NewAdminUpdatedEvent(previous, admin.String()))
		return res, nil
	})
}

// UpdateInterestSplit sets the percentage of each reward paid to lenders. The
// admin keeps the rest.
func (e *Engine) UpdateInterestSplit(env Env, split uint64) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		params, err := requireAdmin(st, env)
		if err != nil {
			return nil, err
		}
		if split > MaxInterestSplit {
			return nil, ErrInvalidInterestSplit
		}
		previous := params.InterestSplit
		params.InterestSplit = split
		if err := st.putParams(params); err != nil {
			return nil, err
		}
		res := newResult(ActionUpdateInterest)
		res.Attributes["interest_split"] = strconv.FormatUint(split, 10)
		res.addEvent(NewInterestUpdatedEvent(previous, split))
		return res, nil
	})
}
