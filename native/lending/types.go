package lending

import (
	"strings"

	"github.com/holiman/uint256"

	"foxylend/core/types"
	"foxylend/crypto"
)

// DefaultDenom is the lending denomination used when genesis leaves it blank.
const DefaultDenom = "SEI"

// MaxInterestSplit bounds Params.InterestSplit. The split is a percentage.
const MaxInterestSplit = 100

// OfferStatus is the lifecycle state of an offer. Only open and active offers
// exist in storage; the terminal states are reported through Result.Outcome
// and events.
type OfferStatus uint8

const (
	OfferOpen OfferStatus = iota
	OfferActive
	OfferCancelled
	OfferRepaid
	OfferDefaulted
)

func (s OfferStatus) String() string {
	switch s {
	case OfferOpen:
		return "open"
	case OfferActive:
		return "active"
	case OfferCancelled:
		return "cancelled"
	case OfferRepaid:
		return "repaid"
	case OfferDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Offer is a lender's standing commitment against one collection. Once a
// borrower deposits collateral the offer becomes an active loan.
type Offer struct {
	ID           uint16
	Owner        crypto.Address
	Amount       *uint256.Int
	StartTime    uint64
	CollectionID uint16
	TokenID      string
	Accepted     bool
	Borrower     crypto.Address
}

// Status derives the lifecycle state from the accepted flag.
func (o *Offer) Status() OfferStatus {
	if o != nil && o.Accepted {
		return OfferActive
	}
	return OfferOpen
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Amount = cloneAmount(o.Amount)
	return &clone
}

// Collection is an admin-managed NFT collection that offers can target.
type Collection struct {
	ID         uint16
	Name       string
	FloorPrice *uint256.Int
	APY        uint16
	MaxTime    uint64
	Contract   crypto.Address
}

// Clone returns a deep copy of the collection.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	clone.FloorPrice = cloneAmount(c.FloorPrice)
	return &clone
}

// Params is the protocol-wide configuration.
type Params struct {
	Admin         crypto.Address
	InterestSplit uint64
	Denom         string
	Custodian     crypto.Address
}

// Clone returns a copy of the params.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Validate checks that the params can drive the engine.
func (p *Params) Validate() error {
	if p == nil {
		return ErrInvalidParams
	}
	if p.Admin.IsZero() {
		return wrapRequest("admin address required")
	}
	if p.Custodian.IsZero() {
		return wrapRequest("custodian address required")
	}
	if p.InterestSplit > MaxInterestSplit {
		return ErrInvalidInterestSplit
	}
	if strings.TrimSpace(p.Denom) == "" {
		return wrapRequest("denom required")
	}
	return nil
}

// Coin is an amount of a fungible denomination attached to a request.
type Coin struct {
	Denom  string
	Amount *uint256.Int
}

// NewCoin is a convenience constructor used by hosts and tests.
func NewCoin(denom string, amount uint64) Coin {
	return Coin{Denom: denom, Amount: uint256.NewInt(amount)}
}

// Env is the execution context supplied by the host for a single operation.
type Env struct {
	Caller crypto.Address
	Now    uint64
	Funds  []Coin
}

// TransferKind distinguishes fungible payouts from NFT movements.
type TransferKind string

const (
	TransferFunds TransferKind = "funds"
	TransferAsset TransferKind = "asset"
)

// Transfer is a deferred effect the host must perform after the operation
// commits. Transfers are ordered.
type Transfer struct {
	Kind     TransferKind
	Contract crypto.Address
	From     crypto.Address
	To       crypto.Address
	TokenID  string
	Amount   *uint256.Int
	Denom    string
}

// Outcome summarises how an operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDefault Outcome = "default"
)

// Result is returned by every state-changing operation.
type Result struct {
	Action     string
	Outcome    Outcome
	OfferID    uint16
	Transfers  []Transfer
	Events     []*types.Event
	Attributes map[string]string
}

func newResult(action string) *Result {
	return &Result{
		Action:     action,
		Outcome:    OutcomeSuccess,
		Attributes: map[string]string{"action": action},
	}
}

func (r *Result) addTransfer(t Transfer) {
	if t.Kind == TransferFunds && (t.Amount == nil || t.Amount.IsZero()) {
		return
	}
	r.Transfers = append(r.Transfers, t)
}

func (r *Result) addEvent(evt *types.Event) {
	if evt != nil {
		r.Events = append(r.Events, evt)
	}
}

// Genesis seeds the params and the initial collection registry.
type Genesis struct {
	Params      Params
	Collections []Collection
}

// Action names reported in Result.Action and used as metric labels.
const (
	ActionLend             = "lend"
	ActionCancelOffer      = "cancel_offer"
	ActionBorrow           = "borrow"
	ActionRepay            = "repay"
	ActionAddCollection    = "add_collection"
	ActionUpdateFloorPrice = "update_floor_price"
	ActionUpdateAdmin      = "update_admin"
	ActionUpdateInterest   = "update_interest"
)

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
