package lending

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/holiman/uint256"

	"foxylend/core/events"
	"foxylend/core/types"
	"foxylend/storage"
)

// EffectSink receives the result of an operation before its ledger writes are
// committed. Returning an error aborts the operation.
type EffectSink interface {
	Enqueue(res *Result) error
}

// EffectRevoker is implemented by sinks that can withdraw what they enqueued
// when the ledger commit that followed failed.
type EffectRevoker interface {
	Revoke(res *Result) error
}

// EffectConfirmer is implemented by sinks that hold enqueued effects back until
// the ledger commit succeeded. Confirm releases them for execution.
type EffectConfirmer interface {
	Confirm(res *Result) error
}

// Engine executes the offer lifecycle against a key-value store. Operations are
// serialised; each one either commits completely or leaves storage untouched.
type Engine struct {
	db      storage.Database
	emitter events.Emitter
	sink    EffectSink
	mu      sync.RWMutex
}

// NewEngine creates a lending engine with a no-op emitter.
func NewEngine(db storage.Database) *Engine {
	return &Engine{db: db, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetEffectSink installs the hook that persists transfer instructions alongside
// each mutation.
func (e *Engine) SetEffectSink(sink EffectSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

func (e *Engine) emit(event *types.Event) {
	if e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(lendingEvent{evt: event})
}

// InitGenesis writes the params and the initial collections. It fails once the
// module has been initialised.
func (e *Engine) InitGenesis(g *Genesis) error {
	if e == nil || e.db == nil {
		return errNilState
	}
	if g == nil {
		return ErrInvalidParams
	}
	params := g.Params.Clone()
	if strings.TrimSpace(params.Denom) == "" {
		params.Denom = DefaultDenom
	}
	params.Denom = strings.TrimSpace(params.Denom)
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	txn := storage.NewTxn(e.db)
	defer txn.Discard()
	st := newStore(txn)
	exists, err := st.hasParams()
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyInitialised
	}
	if err := st.putParams(params); err != nil {
		return err
	}
	if err := st.putLastOfferIndex(0); err != nil {
		return err
	}
	for i := range g.Collections {
		collection := g.Collections[i].Clone()
		if err := sanitizeCollection(collection); err != nil {
			return fmt.Errorf("collection %d: %w", collection.ID, err)
		}
		if err := st.putCollection(collection); err != nil {
			return err
		}
	}
	return txn.Commit()
}

// Initialised reports whether genesis has been applied.
func (e *Engine) Initialised() (bool, error) {
	if e == nil || e.db == nil {
		return false, errNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return newStore(e.db).hasParams()
}

// apply runs fn inside a storage transaction. The sink sees the result before
// the commit and events are emitted only after it. When confirming the effects
// fails the ledger change stands, so the result is returned together with the
// error.
func (e *Engine) apply(env Env, fn func(*store) (*Result, error)) (*Result, error) {
	if e == nil || e.db == nil {
		return nil, errNilState
	}
	if env.Caller.IsZero() {
		return nil, ErrInvalidAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	txn := storage.NewTxn(e.db)
	defer txn.Discard()
	res, err := fn(newStore(txn))
	if err != nil {
		return nil, err
	}
	if res.Attributes == nil {
		res.Attributes = make(map[string]string)
	}
	res.Attributes["outcome"] = string(res.Outcome)
	if e.sink != nil {
		if err := e.sink.Enqueue(res); err != nil {
			return nil, fmt.Errorf("lending: enqueue effects: %w", err)
		}
	}
	if err := txn.Commit(); err != nil {
		if revoker, ok := e.sink.(EffectRevoker); ok {
			if rerr := revoker.Revoke(res); rerr != nil {
				return nil, fmt.Errorf("lending: commit: %w (revoke effects: %v)", err, rerr)
			}
		}
		return nil, err
	}
	var confirmErr error
	if confirmer, ok := e.sink.(EffectConfirmer); ok {
		if err := confirmer.Confirm(res); err != nil {
			confirmErr = fmt.Errorf("%w: %v", ErrEffectsUnconfirmed, err)
		}
	}
	for _, evt := range res.Events {
		e.emit(evt)
	}
	return res, confirmErr
}

// Lend posts an offer of amount against a collection. The caller must attach
// exactly amount in the lending denomination.
func (e *Engine) Lend(env Env, amount *uint256.Int, collectionID uint16) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		if amount == nil || amount.IsZero() {
			return nil, ErrInvalidAmount
		}
		params, err := st.params()
		if err != nil {
			return nil, err
		}
		collection, err := st.collection(collectionID)
		if err != nil {
			return nil, err
		}
		if amount.Gt(collection.FloorPrice) {
			return nil, ErrTooMuchLendAmount
		}
		if err := MustPay(env.Funds, params.Denom, amount); err != nil {
			return nil, err
		}
		last, err := st.lastOfferIndex()
		if err != nil {
			return nil, err
		}
		if last == math.MaxUint16 {
			return nil, ErrOfferIndexExhausted
		}
		offer := &Offer{
			ID:           last + 1,
			Owner:        env.Caller,
			Amount:       cloneAmount(amount),
			StartTime:    env.Now,
			CollectionID: collectionID,
		}
		if err := st.putOffer(offer); err != nil {
			return nil, err
		}
		if err := st.indexOwner(offer); err != nil {
			return nil, err
		}
		if err := st.putLastOfferIndex(offer.ID); err != nil {
			return nil, err
		}
		res := newResult(ActionLend)
		res.OfferID = offer.ID
		res.Attributes["offer_id"] = strconv.FormatUint(uint64(offer.ID), 10)
		res.Attributes["amount"] = offer.Amount.Dec()
		res.Attributes["denom"] = params.Denom
		res.addEvent(NewOfferCreatedEvent(offer, params.Denom))
		return res, nil
	})
}

// CancelOffer withdraws an open offer and refunds the escrowed amount to its
// owner. The owner or the admin may cancel.
func (e *Engine) CancelOffer(env Env, offerID uint16) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		if err := NonPayable(env.Funds); err != nil {
			return nil, err
		}
		offer, err := st.offer(offerID)
		if err != nil {
			return nil, err
		}
		params, err := st.params()
		if err != nil {
			return nil, err
		}
		if !env.Caller.Equal(offer.Owner) && !env.Caller.Equal(params.Admin) {
			return nil, ErrInvalidOfferOwner
		}
		if offer.Accepted {
			return nil, ErrOfferAlreadyAccepted
		}
		if err := st.removeOffer(offer); err != nil {
			return nil, err
		}
		res := newResult(ActionCancelOffer)
		res.OfferID = offer.ID
		res.addTransfer(Transfer{
			Kind:   TransferFunds,
			From:   params.Custodian,
			To:     offer.Owner,
			Amount: cloneAmount(offer.Amount),
			Denom:  params.Denom,
		})
		res.Attributes["offer_id"] = strconv.FormatUint(uint64(offer.ID), 10)
		res.Attributes["amount"] = offer.Amount.Dec()
		res.Attributes["denom"] = params.Denom
		res.addEvent(NewOfferCancelledEvent(offer, env.Caller.String()))
		return res, nil
	})
}

// Borrow accepts an open offer. The caller's NFT moves into custody and the
// offer amount is paid out to the caller.
func (e *Engine) Borrow(env Env, offerID uint16, tokenID string) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		if err := NonPayable(env.Funds); err != nil {
			return nil, err
		}
		tokenID = strings.TrimSpace(tokenID)
		if tokenID == "" {
			return nil, ErrInvalidTokenID
		}
		offer, err := st.offer(offerID)
		if err != nil {
			return nil, err
		}
		if offer.Accepted {
			return nil, ErrOfferAlreadyAccepted
		}
		collection, err := st.collection(offer.CollectionID)
		if err != nil {
			return nil, err
		}
		params, err := st.params()
		if err != nil {
			return nil, err
		}
		offer.TokenID = tokenID
		offer.Accepted = true
		offer.Borrower = env.Caller
		if err := st.putOffer(offer); err != nil {
			return nil, err
		}
		if err := st.indexBorrower(offer); err != nil {
			return nil, err
		}
		res := newResult(ActionBorrow)
		res.OfferID = offer.ID
		res.addTransfer(Transfer{
			Kind:     TransferAsset,
			Contract: collection.Contract,
			From:     env.Caller,
			To:       params.Custodian,
			TokenID:  tokenID,
		})
		res.addTransfer(Transfer{
			Kind:   TransferFunds,
			From:   params.Custodian,
			To:     env.Caller,
			Amount: cloneAmount(offer.Amount),
			Denom:  params.Denom,
		})
		res.Attributes["offer_id"] = strconv.FormatUint(uint64(offer.ID), 10)
		res.Attributes["token_id"] = tokenID
		res.Attributes["amount"] = offer.Amount.Dec()
		res.addEvent(NewOfferAcceptedEvent(offer))
		return res, nil
	})
}

// Repay settles an active loan. Within the collection's max time the borrower
// pays principal plus reward and gets the collateral back; past it the
// collateral goes to the lender and nothing is charged.
func (e *Engine) Repay(env Env, offerID uint16) (*Result, error) {
	return e.apply(env, func(st *store) (*Result, error) {
		offer, err := st.offer(offerID)
		if err != nil {
			return nil, err
		}
		if !offer.Accepted {
			return nil, ErrOfferNotAccepted
		}
		if !env.Caller.Equal(offer.Borrower) {
			return nil, ErrInvalidBorrow
		}
		collection, err := st.collection(offer.CollectionID)
		if err != nil {
			return nil, err
		}
		params, err := st.params()
		if err != nil {
			return nil, err
		}
		if env.Now < offer.StartTime {
			return nil, ErrClockBeforeStart
		}
		elapsed := env.Now - offer.StartTime
		if elapsed > collection.MaxTime {
			return settleDefault(st, env, offer, collection, params, elapsed)
		}
		return settleRepayment(st, env, offer, collection, params)
	})
}

func settleDefault(st *store, env Env, offer *Offer, collection *Collection, params *Params, elapsed uint64) (*Result, error) {
	if err := st.removeOffer(offer); err != nil {
		return nil, err
	}
	res := newResult(ActionRepay)
	res.Outcome = OutcomeDefault
	res.OfferID = offer.ID
	res.addTransfer(Transfer{
		Kind:     TransferAsset,
		Contract: collection.Contract,
		From:     params.Custodian,
		To:       offer.Owner,
		TokenID:  offer.TokenID,
	})
	for _, coin := range attachedCoins(env.Funds) {
		res.addTransfer(Transfer{
			Kind:   TransferFunds,
			From:   params.Custodian,
			To:     env.Caller,
			Amount: coin.Amount,
			Denom:  coin.Denom,
		})
	}
	res.Attributes["offer_id"] = strconv.FormatUint(uint64(offer.ID), 10)
	res.Attributes["token_id"] = offer.TokenID
	res.addEvent(NewOfferDefaultedEvent(offer, elapsed))
	return res, nil
}

func settleRepayment(st *store, env Env, offer *Offer, collection *Collection, params *Params) (*Result, error) {
	reward, err := CalculateReward(offer.StartTime, collection.APY, env.Now, offer.Amount)
	if err != nil {
		return nil, err
	}
	due, overflow := new(uint256.Int).AddOverflow(offer.Amount, reward)
	if overflow {
		return nil, ErrRewardOverflow
	}
	if err := MustPay(env.Funds, params.Denom, due); err != nil {
		return nil, err
	}
	ownerReward, adminShare, err := SplitReward(reward, params.InterestSplit)
	if err != nil {
		return nil, err
	}
	ownerShare := new(uint256.Int).Add(offer.Amount, ownerReward)
	if err := st.removeOffer(offer); err != nil {
		return nil, err
	}
	res := newResult(ActionRepay)
	res.OfferID = offer.ID
	res.addTransfer(Transfer{
		Kind:     TransferAsset,
		Contract: collection.Contract,
		From:     params.Custodian,
		To:       offer.Borrower,
		TokenID:  offer.TokenID,
	})
	res.addTransfer(Transfer{
		Kind:   TransferFunds,
		From:   params.Custodian,
		To:     offer.Owner,
		Amount: ownerShare,
		Denom:  params.Denom,
	})
	res.addTransfer(Transfer{
		Kind:   TransferFunds,
		From:   params.Custodian,
		To:     params.Admin,
		Amount: adminShare,
		Denom:  params.Denom,
	})
	res.Attributes["offer_id"] = strconv.FormatUint(uint64(offer.ID), 10)
	res.Attributes["token_id"] = offer.TokenID
	res.Attributes["reward"] = reward.Dec()
	res.Attributes["amount"] = due.Dec()
	res.addEvent(NewOfferRepaidEvent(offer, reward.Dec(), ownerShare.Dec(), adminShare.Dec()))
	return res, nil
}
