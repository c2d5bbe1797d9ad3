package lending

import (
	"math"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"foxylend/crypto"
)

// Page selects a window of a listing. Number is 1-based.
type Page struct {
	Number uint64
	Size   uint64
}

// window returns how many entries to skip and take. ok is false when the page
// cannot contain anything.
func (p Page) window() (skip, take uint64, ok bool) {
	if p.Number == 0 || p.Size == 0 {
		return 0, 0, false
	}
	if p.Number-1 > math.MaxUint64/p.Size {
		return 0, 0, false
	}
	return (p.Number - 1) * p.Size, p.Size, true
}

// paginator collects the entries of one page from a stream of candidates.
type paginator[T any] struct {
	skip, take uint64
	seen       uint64
	out        []T
}

func newPaginator[T any](page Page) (*paginator[T], bool) {
	skip, take, ok := page.window()
	if !ok {
		return nil, false
	}
	return &paginator[T]{skip: skip, take: take, out: make([]T, 0)}, true
}

// add offers a candidate and reports whether more are wanted.
func (p *paginator[T]) add(v T) bool {
	if p.seen >= p.skip {
		p.out = append(p.out, v)
	}
	p.seen++
	return uint64(len(p.out)) < p.take
}

// SortOrder orders price scans.
type SortOrder uint8

const (
	Ascending SortOrder = iota
	Descending
)

// ParseSortOrder accepts "asc" and "desc". Anything else is ascending.
func ParseSortOrder(s string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return Descending
	default:
		return Ascending
	}
}

func (o SortOrder) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// Quote is the settlement a borrower would face at a given time.
type Quote struct {
	OfferID  uint16
	Reward   *uint256.Int
	Due      *uint256.Int
	Deadline uint64
	Overdue  bool
}

// Stats counts the offers currently stored.
type Stats struct {
	Open   uint64
	Active uint64
}

func (e *Engine) read(fn func(*store) error) error {
	if e == nil || e.db == nil {
		return errNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(newStore(e.db))
}

// Params returns the protocol configuration.
func (e *Engine) Params() (*Params, error) {
	var out *Params
	err := e.read(func(st *store) error {
		p, err := st.params()
		out = p
		return err
	})
	return out, err
}

// Offer returns one offer.
func (e *Engine) Offer(id uint16) (*Offer, error) {
	var out *Offer
	err := e.read(func(st *store) error {
		o, err := st.offer(id)
		out = o
		return err
	})
	return out, err
}

// Offers lists every offer in ascending id order.
func (e *Engine) Offers(page Page) ([]*Offer, error) {
	pager, ok := newPaginator[*Offer](page)
	if !ok {
		return []*Offer{}, nil
	}
	err := e.read(func(st *store) error {
		return st.eachOffer(0, func(o *Offer) (bool, error) {
			return pager.add(o), nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pager.out, nil
}

// OfferRange lists the offers whose id lies in [start, stop].
func (e *Engine) OfferRange(start, stop uint16) ([]*Offer, error) {
	out := make([]*Offer, 0)
	if stop < start {
		return out, nil
	}
	err := e.read(func(st *store) error {
		return st.eachOffer(start, func(o *Offer) (bool, error) {
			if o.ID > stop {
				return false, nil
			}
			out = append(out, o)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OffersByOwner lists the offers posted by owner, open or active.
func (e *Engine) OffersByOwner(owner crypto.Address, page Page) ([]*Offer, error) {
	return e.indexedOffers(ownerPrefix, owner, page, nil)
}

// OffersByBorrower lists the active loans taken by borrower.
func (e *Engine) OffersByBorrower(borrower crypto.Address, page Page) ([]*Offer, error) {
	return e.indexedOffers(borrowerPrefix, borrower, page, func(o *Offer) bool { return o.Accepted })
}

func (e *Engine) indexedOffers(base string, addr crypto.Address, page Page, keep func(*Offer) bool) ([]*Offer, error) {
	pager, ok := newPaginator[*Offer](page)
	if !ok || addr.IsZero() {
		return []*Offer{}, nil
	}
	err := e.read(func(st *store) error {
		return st.eachIndexed(base, addr, func(id uint16) (bool, error) {
			o, err := st.offer(id)
			if err != nil {
				return false, err
			}
			if keep != nil && !keep(o) {
				return true, nil
			}
			return pager.add(o), nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pager.out, nil
}

// OffersByPrice lists offers whose amount is strictly above threshold, sorted
// by amount. Equal amounts keep ascending id order in both directions.
func (e *Engine) OffersByPrice(threshold *uint256.Int, order SortOrder, page Page) ([]*Offer, error) {
	if _, _, ok := page.window(); !ok {
		return []*Offer{}, nil
	}
	floor := cloneAmount(threshold)
	matches := make([]*Offer, 0)
	err := e.read(func(st *store) error {
		return st.eachOffer(0, func(o *Offer) (bool, error) {
			if o.Amount.Gt(floor) {
				matches = append(matches, o)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		cmp := matches[i].Amount.Cmp(matches[j].Amount)
		if cmp == 0 {
			return matches[i].ID < matches[j].ID
		}
		if order == Descending {
			return cmp > 0
		}
		return cmp < 0
	})
	pager, _ := newPaginator[*Offer](page)
	for _, o := range matches {
		if !pager.add(o) {
			break
		}
	}
	return pager.out, nil
}

// Collection returns one collection.
func (e *Engine) Collection(id uint16) (*Collection, error) {
	var out *Collection
	err := e.read(func(st *store) error {
		c, err := st.collection(id)
		out = c
		return err
	})
	return out, err
}

// Collections lists the registry in ascending id order.
func (e *Engine) Collections(page Page) ([]*Collection, error) {
	pager, ok := newPaginator[*Collection](page)
	if !ok {
		return []*Collection{}, nil
	}
	err := e.read(func(st *store) error {
		return st.eachCollection(func(c *Collection) (bool, error) {
			return pager.add(c), nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pager.out, nil
}

// RepaymentQuote reports what Repay would charge for offer id at now.
func (e *Engine) RepaymentQuote(id uint16, now uint64) (*Quote, error) {
	var out *Quote
	err := e.read(func(st *store) error {
		o, err := st.offer(id)
		if err != nil {
			return err
		}
		if !o.Accepted {
			return ErrOfferNotAccepted
		}
		c, err := st.collection(o.CollectionID)
		if err != nil {
			return err
		}
		if now < o.StartTime {
			return ErrClockBeforeStart
		}
		deadline := o.StartTime + c.MaxTime
		if deadline < o.StartTime {
			deadline = math.MaxUint64
		}
		quote := &Quote{OfferID: o.ID, Deadline: deadline, Overdue: now-o.StartTime > c.MaxTime}
		if quote.Overdue {
			quote.Reward = new(uint256.Int)
			quote.Due = new(uint256.Int)
			out = quote
			return nil
		}
		reward, err := CalculateReward(o.StartTime, c.APY, now, o.Amount)
		if err != nil {
			return err
		}
		due, overflow := new(uint256.Int).AddOverflow(o.Amount, reward)
		if overflow {
			return ErrRewardOverflow
		}
		quote.Reward = reward
		quote.Due = due
		out = quote
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stats counts open and active offers.
func (e *Engine) Stats() (Stats, error) {
	var stats Stats
	err := e.read(func(st *store) error {
		return st.eachOffer(0, func(o *Offer) (bool, error) {
			if o.Accepted {
				stats.Active++
			} else {
				stats.Open++
			}
			return true, nil
		})
	})
	return stats, err
}
