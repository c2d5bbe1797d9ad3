package lending

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"

	"foxylend/core/events"
	"foxylend/crypto"
	"foxylend/storage"
)

var (
	testAdmin     = crypto.AddressFromSeed("admin")
	testCustodian = crypto.AddressFromSeed("custodian")
	testLender    = crypto.AddressFromSeed("lender")
	testBorrower  = crypto.AddressFromSeed("borrower")
	testStranger  = crypto.AddressFromSeed("stranger")
	testNFT       = crypto.AddressFromSeed("collection/punks")
	testNFT2      = crypto.AddressFromSeed("collection/apes")
)

const (
	testStart   = uint64(1_700_000_000)
	testMaxTime = uint64(86_400)
)

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func sei(v uint64) []Coin { return []Coin{NewCoin(DefaultDenom, v)} }

func at(caller crypto.Address, now uint64, funds ...Coin) Env {
	return Env{Caller: caller, Now: now, Funds: funds}
}

func testGenesis(split uint64) *Genesis {
	return &Genesis{
		Params: Params{
			Admin:         testAdmin,
			InterestSplit: split,
			Custodian:     testCustodian,
		},
		Collections: []Collection{
			{ID: 1, Name: "Punks", FloorPrice: amt(100), APY: 10, MaxTime: testMaxTime, Contract: testNFT},
			{ID: 2, Name: "Apes", FloorPrice: amt(10_000_000), APY: 12, MaxTime: 365 * 24 * 3600, Contract: testNFT2},
		},
	}
}

func newTestEngine(t *testing.T, split uint64) (*Engine, *events.Recorder, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	engine := NewEngine(db)
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	if err := engine.InitGenesis(testGenesis(split)); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	return engine, recorder, db
}

func mustLend(t *testing.T, engine *Engine, lender crypto.Address, amount uint64, collectionID uint16) uint16 {
	t.Helper()
	res, err := engine.Lend(at(lender, testStart, sei(amount)...), amt(amount), collectionID)
	if err != nil {
		t.Fatalf("lend: %v", err)
	}
	return res.OfferID
}

func mustBorrow(t *testing.T, engine *Engine, borrower crypto.Address, offerID uint16, tokenID string) {
	t.Helper()
	if _, err := engine.Borrow(at(borrower, testStart+10), offerID, tokenID); err != nil {
		t.Fatalf("borrow: %v", err)
	}
}

func snapshot(t *testing.T, db storage.Database) map[string]string {
	t.Helper()
	it := db.NewIterator([]byte("lending/"), nil)
	defer it.Release()
	out := make(map[string]string)
	for it.Next() {
		out[string(it.Key())] = string(it.Value())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return out
}

func requireUnchanged(t *testing.T, before, after map[string]string) {
	t.Helper()
	if len(before) != len(after) {
		t.Fatalf("expected %d keys, got %d", len(before), len(after))
	}
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("key %s changed", k)
		}
	}
}

func ids(offers []*Offer) []uint16 {
	out := make([]uint16, 0, len(offers))
	for _, o := range offers {
		out = append(out, o.ID)
	}
	return out
}

func equalIDs(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLendCreatesOpenOffer(t *testing.T) {
	engine, recorder, _ := newTestEngine(t, 50)

	res, err := engine.Lend(at(testLender, testStart, sei(50)...), amt(50), 1)
	if err != nil {
		t.Fatalf("lend: %v", err)
	}
	if res.OfferID != 1 {
		t.Fatalf("expected offer id 1, got %d", res.OfferID)
	}
	if len(res.Transfers) != 0 {
		t.Fatalf("lend must not schedule transfers, got %d", len(res.Transfers))
	}
	offer, err := engine.Offer(1)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Accepted || !offer.Borrower.IsZero() || offer.TokenID != "" {
		t.Fatalf("new offer must be open: %+v", offer)
	}
	if !offer.Owner.Equal(testLender) || offer.StartTime != testStart || offer.Amount.Uint64() != 50 {
		t.Fatalf("unexpected offer fields: %+v", offer)
	}
	owned, err := engine.OffersByOwner(testLender, Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("by owner: %v", err)
	}
	if !equalIDs(ids(owned), []uint16{1}) {
		t.Fatalf("owner index mismatch: %v", ids(owned))
	}
	if got := recorder.Types(); len(got) != 1 || got[0] != EventTypeOfferCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestLendRejectsAmountAboveFloor(t *testing.T) {
	engine, _, db := newTestEngine(t, 50)
	before := snapshot(t, db)

	_, err := engine.Lend(at(testLender, testStart, sei(200)...), amt(200), 1)
	if !errors.Is(err, ErrTermViolation) || !errors.Is(err, ErrTooMuchLendAmount) {
		t.Fatalf("expected term violation, got %v", err)
	}
	requireUnchanged(t, before, snapshot(t, db))

	if _, err := engine.Lend(at(testLender, testStart, sei(100)...), amt(100), 1); err != nil {
		t.Fatalf("lend at floor price: %v", err)
	}
}

func TestLendValidatesPaymentAndCollection(t *testing.T) {
	engine, _, db := newTestEngine(t, 50)
	before := snapshot(t, db)

	cases := []struct {
		name   string
		env    Env
		amount *uint256.Int
		coll   uint16
		want   error
	}{
		{name: "no funds", env: at(testLender, testStart), amount: amt(50), coll: 1, want: ErrDepositFail},
		{name: "wrong denom", env: at(testLender, testStart, NewCoin("USDC", 50)), amount: amt(50), coll: 1, want: ErrDepositFail},
		{name: "short", env: at(testLender, testStart, sei(49)...), amount: amt(50), coll: 1, want: ErrNotExactAmount},
		{name: "two coins", env: at(testLender, testStart, NewCoin(DefaultDenom, 25), NewCoin(DefaultDenom, 25)), amount: amt(50), coll: 1, want: ErrDepositFail},
		{name: "unknown collection", env: at(testLender, testStart, sei(50)...), amount: amt(50), coll: 9, want: ErrCollectionNotFound},
		{name: "zero amount", env: at(testLender, testStart, sei(0)...), amount: amt(0), coll: 1, want: ErrInvalidAmount},
		{name: "no caller", env: Env{Now: testStart, Funds: sei(50)}, amount: amt(50), coll: 1, want: ErrInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Lend(tc.env, tc.amount, tc.coll); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	requireUnchanged(t, before, snapshot(t, db))
}

func TestBorrowAcceptsOfferOnce(t *testing.T) {
	engine, recorder, _ := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)

	res, err := engine.Borrow(at(testBorrower, testStart+5), id, "token123")
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if len(res.Transfers) != 2 {
		t.Fatalf("expected two transfers, got %d", len(res.Transfers))
	}
	asset, funds := res.Transfers[0], res.Transfers[1]
	if asset.Kind != TransferAsset || !asset.From.Equal(testBorrower) || !asset.To.Equal(testCustodian) ||
		!asset.Contract.Equal(testNFT) || asset.TokenID != "token123" {
		t.Fatalf("unexpected asset transfer: %+v", asset)
	}
	if funds.Kind != TransferFunds || !funds.To.Equal(testBorrower) || funds.Amount.Uint64() != 50 || funds.Denom != DefaultDenom {
		t.Fatalf("unexpected funds transfer: %+v", funds)
	}

	offer, err := engine.Offer(id)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if !offer.Accepted || !offer.Borrower.Equal(testBorrower) || offer.TokenID != "token123" {
		t.Fatalf("offer not accepted: %+v", offer)
	}
	if offer.StartTime != testStart {
		t.Fatalf("start time must not change on borrow, got %d", offer.StartTime)
	}
	loans, err := engine.OffersByBorrower(testBorrower, Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("by borrower: %v", err)
	}
	if !equalIDs(ids(loans), []uint16{id}) {
		t.Fatalf("borrower index mismatch: %v", ids(loans))
	}

	_, err = engine.Borrow(at(testStranger, testStart+6), id, "token456")
	if !errors.Is(err, ErrInvalidState) || !errors.Is(err, ErrOfferAlreadyAccepted) {
		t.Fatalf("expected already accepted, got %v", err)
	}
	if got := recorder.Types(); len(got) != 2 || got[1] != EventTypeOfferAccepted {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestBorrowRejectsFundsAndMissingToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)

	if _, err := engine.Borrow(at(testBorrower, testStart, sei(1)...), id, "token"); !errors.Is(err, ErrUnexpectedFunds) {
		t.Fatalf("expected unexpected funds, got %v", err)
	}
	if _, err := engine.Borrow(at(testBorrower, testStart), id, "  "); !errors.Is(err, ErrInvalidTokenID) {
		t.Fatalf("expected invalid token id, got %v", err)
	}
	if _, err := engine.Borrow(at(testBorrower, testStart), 99, "token"); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("expected offer not found, got %v", err)
	}
}

func TestBorrowOwnOfferIsAllowed(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)
	mustBorrow(t, engine, testLender, id, "self")
	offer, err := engine.Offer(id)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if !offer.Borrower.Equal(testLender) {
		t.Fatalf("expected lender to be borrower, got %s", offer.Borrower)
	}
}

func TestRepayAfterMaxTimeDefaults(t *testing.T) {
	engine, recorder, db := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)
	mustBorrow(t, engine, testBorrower, id, "token123")

	res, err := engine.Repay(at(testBorrower, testStart+testMaxTime+1, sei(51)...), id)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if res.Outcome != OutcomeDefault {
		t.Fatalf("expected default outcome, got %s", res.Outcome)
	}
	if len(res.Transfers) != 2 {
		t.Fatalf("expected collateral transfer and refund, got %d transfers", len(res.Transfers))
	}
	collateral, refund := res.Transfers[0], res.Transfers[1]
	if collateral.Kind != TransferAsset || !collateral.To.Equal(testLender) || !collateral.From.Equal(testCustodian) || collateral.TokenID != "token123" {
		t.Fatalf("collateral must go to the lender: %+v", collateral)
	}
	if refund.Kind != TransferFunds || !refund.To.Equal(testBorrower) || refund.Amount.Uint64() != 51 {
		t.Fatalf("attached funds must be refunded: %+v", refund)
	}
	if _, err := engine.Offer(id); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("offer must be removed, got %v", err)
	}
	assertNoIndexEntries(t, db)
	if got := recorder.Types(); got[len(got)-1] != EventTypeOfferDefaulted {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestRepayDefaultWithoutFunds(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)
	mustBorrow(t, engine, testBorrower, id, "token123")

	res, err := engine.Repay(at(testBorrower, testStart+testMaxTime+1), id)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if len(res.Transfers) != 1 || res.Transfers[0].Kind != TransferAsset {
		t.Fatalf("expected only the collateral transfer: %+v", res.Transfers)
	}
}

func TestRepayAtMaxTimeIsOnTime(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)
	mustBorrow(t, engine, testBorrower, id, "token123")

	now := testStart + testMaxTime
	reward, err := CalculateReward(testStart, 10, now, amt(50))
	if err != nil {
		t.Fatalf("reward: %v", err)
	}
	due := new(uint256.Int).Add(amt(50), reward).Uint64()

	if _, err := engine.Repay(at(testBorrower, now), id); !errors.Is(err, ErrDepositFail) {
		t.Fatalf("on-time repay must require payment, got %v", err)
	}
	res, err := engine.Repay(at(testBorrower, now, sei(due)...), id)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success at the deadline, got %s", res.Outcome)
	}
}

func TestRepayAmountMismatchLeavesLedgerUntouched(t *testing.T) {
	engine, _, db := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)
	mustBorrow(t, engine, testBorrower, id, "token123")
	before := snapshot(t, db)

	// 50 * 63072s * 10% / year = 1
	now := testStart + 63_072
	_, err := engine.Repay(at(testBorrower, now, sei(50)...), id)
	if !errors.Is(err, ErrAmountMismatch) || !errors.Is(err, ErrNotExactAmount) {
		t.Fatalf("expected amount mismatch, got %v", err)
	}
	requireUnchanged(t, before, snapshot(t, db))

	if _, err := engine.Repay(at(testBorrower, now, sei(51)...), id); err != nil {
		t.Fatalf("exact repayment: %v", err)
	}
}

func TestRepaySplitsRewardAndConservesFunds(t *testing.T) {
	cases := []struct {
		split uint64
		owner uint64
		admin uint64
	}{
		{split: 50, owner: 16_438, admin: 16_438},
		{split: 33, owner: 10_849, admin: 22_027},
		{split: 0, owner: 0, admin: 32_876},
		{split: 100, owner: 32_876, admin: 0},
	}
	for _, tc := range cases {
		engine, _, db := newTestEngine(t, tc.split)
		id := mustLend(t, engine, testLender, 1_000_000, 2)
		mustBorrow(t, engine, testBorrower, id, "ape-7")

		// 1_000_000 * 86400s * 12% / year = 32876
		now := testStart + 86_400
		due := uint64(1_000_000 + 32_876)
		res, err := engine.Repay(at(testBorrower, now, sei(due)...), id)
		if err != nil {
			t.Fatalf("split %d: repay: %v", tc.split, err)
		}
		if res.Transfers[0].Kind != TransferAsset || !res.Transfers[0].To.Equal(testBorrower) {
			t.Fatalf("split %d: collateral must return to the borrower first: %+v", tc.split, res.Transfers[0])
		}
		var ownerPaid, adminPaid, total uint64
		for _, tr := range res.Transfers[1:] {
			if tr.Kind != TransferFunds {
				t.Fatalf("split %d: unexpected transfer %+v", tc.split, tr)
			}
			total += tr.Amount.Uint64()
			switch {
			case tr.To.Equal(testLender):
				ownerPaid += tr.Amount.Uint64()
			case tr.To.Equal(testAdmin):
				adminPaid += tr.Amount.Uint64()
			}
		}
		if ownerPaid != 1_000_000+tc.owner || adminPaid != tc.admin {
			t.Fatalf("split %d: owner %d admin %d", tc.split, ownerPaid, adminPaid)
		}
		if total != due {
			t.Fatalf("split %d: paid out %d, attached %d", tc.split, total, due)
		}
		if tc.admin == 0 && len(res.Transfers) != 2 {
			t.Fatalf("split %d: zero admin share must not be scheduled", tc.split)
		}
		assertNoIndexEntries(t, db)
	}
}

func TestRepayRequiresAcceptedOfferAndBorrower(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)

	if _, err := engine.Repay(at(testBorrower, testStart+1), id); !errors.Is(err, ErrOfferNotAccepted) {
		t.Fatalf("expected offer not accepted, got %v", err)
	}
	mustBorrow(t, engine, testBorrower, id, "token123")
	if _, err := engine.Repay(at(testStranger, testStart+1), id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := engine.Repay(at(testBorrower, testStart-1), id); !errors.Is(err, ErrClockBeforeStart) {
		t.Fatalf("expected clock error, got %v", err)
	}
	if _, err := engine.Repay(at(testBorrower, testStart), 77); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancelOffer(t *testing.T) {
	engine, _, db := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 60, 1)

	if _, err := engine.CancelOffer(at(testStranger, testStart), id); !errors.Is(err, ErrInvalidOfferOwner) {
		t.Fatalf("expected invalid offer owner, got %v", err)
	}
	res, err := engine.CancelOffer(at(testLender, testStart), id)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(res.Transfers) != 1 {
		t.Fatalf("expected refund transfer, got %d", len(res.Transfers))
	}
	refund := res.Transfers[0]
	if refund.Kind != TransferFunds || !refund.To.Equal(testLender) || refund.Amount.Uint64() != 60 || refund.Denom != DefaultDenom {
		t.Fatalf("unexpected refund: %+v", refund)
	}
	assertNoIndexEntries(t, db)

	before := snapshot(t, db)
	if _, err := engine.CancelOffer(at(testLender, testStart), id); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("second cancel must fail with not found, got %v", err)
	}
	requireUnchanged(t, before, snapshot(t, db))
}

func TestNonPayableOperationsRejectFunds(t *testing.T) {
	engine, _, db := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)
	before := snapshot(t, db)

	if _, err := engine.CancelOffer(at(testLender, testStart, sei(30)...), id); !errors.Is(err, ErrUnexpectedFunds) {
		t.Fatalf("cancel with funds: expected unexpected funds, got %v", err)
	}
	msgs := []Msg{
		MsgAddCollection{Collection: Collection{ID: 7, FloorPrice: amt(10), APY: 1, MaxTime: 60, Contract: testNFT2}},
		MsgUpdateFloorPrice{CollectionID: 1, FloorPrice: amt(10)},
		MsgUpdateAdmin{Admin: testStranger},
		MsgUpdateInterest{InterestSplit: 10},
	}
	for _, msg := range msgs {
		if _, err := engine.Dispatch(at(testAdmin, testStart, sei(1)...), msg); !errors.Is(err, ErrUnexpectedFunds) {
			t.Fatalf("%s with funds: expected unexpected funds, got %v", msg.Action(), err)
		}
	}
	requireUnchanged(t, before, snapshot(t, db))

	res, err := engine.CancelOffer(at(testLender, testStart, Coin{Denom: DefaultDenom, Amount: amt(0)}), id)
	if err != nil {
		t.Fatalf("cancel with zero coin: %v", err)
	}
	if len(res.Transfers) != 1 || res.Transfers[0].Amount.Uint64() != 50 {
		t.Fatalf("unexpected refund: %+v", res.Transfers)
	}
}

func TestAdminCanCancelButNotActiveOffers(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	open := mustLend(t, engine, testLender, 10, 1)
	active := mustLend(t, engine, testLender, 20, 1)
	mustBorrow(t, engine, testBorrower, active, "token")

	if _, err := engine.CancelOffer(at(testAdmin, testStart), open); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if _, err := engine.CancelOffer(at(testLender, testStart), active); !errors.Is(err, ErrOfferAlreadyAccepted) {
		t.Fatalf("expected already accepted, got %v", err)
	}
	assertIndexesConsistent(t, engine)
}

func TestOfferIDsAreNeverReused(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	first := mustLend(t, engine, testLender, 10, 1)
	if _, err := engine.CancelOffer(at(testLender, testStart), first); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second := mustLend(t, engine, testLender, 10, 1)
	if second != first+1 {
		t.Fatalf("expected id %d, got %d", first+1, second)
	}
}

func TestOfferIndexExhausted(t *testing.T) {
	engine, _, db := newTestEngine(t, 50)
	txn := storage.NewTxn(db)
	if err := newStore(txn).putLastOfferIndex(math.MaxUint16); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_, err := engine.Lend(at(testLender, testStart, sei(10)...), amt(10), 1)
	if !errors.Is(err, ErrOfferIndexExhausted) {
		t.Fatalf("expected exhausted index, got %v", err)
	}
}

type failingSink struct {
	calls int
}

func (s *failingSink) Enqueue(*Result) error {
	s.calls++
	return errors.New("outbox unavailable")
}

type recordingSink struct {
	results []*Result
}

func (s *recordingSink) Enqueue(res *Result) error {
	s.results = append(s.results, res)
	return nil
}

func TestSinkFailureAbortsOperation(t *testing.T) {
	engine, recorder, db := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 50, 1)
	before := snapshot(t, db)
	emitted := len(recorder.Events())

	sink := &failingSink{}
	engine.SetEffectSink(sink)
	if _, err := engine.Borrow(at(testBorrower, testStart+1), id, "token"); err == nil {
		t.Fatalf("expected sink failure to abort borrow")
	}
	if sink.calls != 1 {
		t.Fatalf("expected one enqueue attempt, got %d", sink.calls)
	}
	requireUnchanged(t, before, snapshot(t, db))
	if len(recorder.Events()) != emitted {
		t.Fatalf("aborted operation must not emit events")
	}

	ok := &recordingSink{}
	engine.SetEffectSink(ok)
	mustBorrow(t, engine, testBorrower, id, "token")
	if len(ok.results) != 1 || len(ok.results[0].Transfers) != 2 {
		t.Fatalf("sink must observe the borrow transfers: %+v", ok.results)
	}
}

type confirmingSink struct {
	recordingSink
	db        storage.Database
	confirmed []*Result
	err       error
	committed []bool
}

func (s *confirmingSink) Confirm(res *Result) error {
	offer, err := newStore(s.db).offer(res.OfferID)
	s.committed = append(s.committed, err == nil && offer.Accepted)
	if s.err != nil {
		return s.err
	}
	s.confirmed = append(s.confirmed, res)
	return nil
}

func TestSinkConfirmedAfterCommit(t *testing.T) {
	engine, recorder, db := newTestEngine(t, 50)
	first := mustLend(t, engine, testLender, 50, 1)
	second := mustLend(t, engine, testLender, 40, 1)
	sink := &confirmingSink{db: db}
	engine.SetEffectSink(sink)

	mustBorrow(t, engine, testBorrower, first, "token-1")
	if len(sink.confirmed) != 1 || len(sink.committed) != 1 || !sink.committed[0] {
		t.Fatalf("confirm must run once the borrow is committed: %+v", sink.committed)
	}

	sink.err = errors.New("outbox unreachable")
	emitted := len(recorder.Events())
	res, err := engine.Borrow(at(testBorrower, testStart+1), second, "token-2")
	if !errors.Is(err, ErrEffectsUnconfirmed) {
		t.Fatalf("expected unconfirmed effects, got %v", err)
	}
	if res == nil || res.OfferID != second {
		t.Fatalf("committed result must be returned with the error: %+v", res)
	}
	offer, err := engine.Offer(second)
	if err != nil || !offer.Accepted {
		t.Fatalf("ledger change must stand: %+v %v", offer, err)
	}
	if len(recorder.Events()) != emitted+1 {
		t.Fatalf("committed operation must still emit its event")
	}
}

func TestInitGenesisValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	if err := engine.InitGenesis(testGenesis(50)); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected already initialised, got %v", err)
	}

	fresh := NewEngine(storage.NewMemDB())
	if err := fresh.InitGenesis(testGenesis(101)); !errors.Is(err, ErrInvalidInterestSplit) {
		t.Fatalf("expected invalid split, got %v", err)
	}
	g := testGenesis(10)
	g.Params.Custodian = crypto.Address{}
	if err := fresh.InitGenesis(g); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected missing custodian rejection, got %v", err)
	}
	if ok, err := fresh.Initialised(); err != nil || ok {
		t.Fatalf("rejected genesis must not initialise the module: %v %v", ok, err)
	}
	if _, err := fresh.Lend(at(testLender, testStart, sei(1)...), amt(1), 1); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected not initialised, got %v", err)
	}

	params, err := engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Denom != DefaultDenom || !params.Admin.Equal(testAdmin) || !params.Custodian.Equal(testCustodian) {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestEnginePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	engine := NewEngine(db)
	if err := engine.InitGenesis(testGenesis(50)); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	id := mustLend(t, engine, testLender, 40, 1)
	mustBorrow(t, engine, testBorrower, id, "token")
	db.Close()

	db, err = storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer db.Close()
	engine = NewEngine(db)
	offer, err := engine.Offer(id)
	if err != nil {
		t.Fatalf("offer after reopen: %v", err)
	}
	if !offer.Accepted || offer.Amount.Uint64() != 40 || !offer.Borrower.Equal(testBorrower) {
		t.Fatalf("offer not persisted: %+v", offer)
	}
	next := mustLend(t, engine, testLender, 40, 1)
	if next != id+1 {
		t.Fatalf("offer index not persisted: got %d", next)
	}
}

func assertIndexesConsistent(t *testing.T, engine *Engine) {
	t.Helper()
	page := Page{Number: 1, Size: 100}
	for _, addr := range []crypto.Address{testLender, testBorrower, testStranger} {
		owned, err := engine.OffersByOwner(addr, page)
		if err != nil {
			t.Fatalf("by owner: %v", err)
		}
		for _, o := range owned {
			if _, err := engine.Offer(o.ID); err != nil {
				t.Fatalf("owner index points at missing offer %d", o.ID)
			}
		}
		loans, err := engine.OffersByBorrower(addr, page)
		if err != nil {
			t.Fatalf("by borrower: %v", err)
		}
		for _, o := range loans {
			if !o.Accepted {
				t.Fatalf("borrower index lists open offer %d", o.ID)
			}
		}
	}
	all, err := engine.Offers(page)
	if err != nil {
		t.Fatalf("offers: %v", err)
	}
	if len(all) == 0 {
		return
	}
	for _, o := range all {
		owned, err := engine.OffersByOwner(o.Owner, page)
		if err != nil {
			t.Fatalf("by owner: %v", err)
		}
		found := false
		for _, x := range owned {
			found = found || x.ID == o.ID
		}
		if !found {
			t.Fatalf("offer %d missing from owner index", o.ID)
		}
	}
}

func assertNoIndexEntries(t *testing.T, db storage.Database) {
	t.Helper()
	for _, prefix := range []string{offerPrefix, ownerPrefix, borrowerPrefix} {
		it := db.NewIterator([]byte(prefix), nil)
		if it.Next() {
			key := string(it.Key())
			it.Release()
			t.Fatalf("expected no entries under %s, found %s", prefix, key)
		}
		it.Release()
	}
}
