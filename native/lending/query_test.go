package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestOffersPagination(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	const total = 7
	for i := 0; i < total; i++ {
		mustLend(t, engine, testLender, 10, 1)
	}

	cases := []struct {
		page Page
		want []uint16
	}{
		{page: Page{Number: 1, Size: 3}, want: []uint16{1, 2, 3}},
		{page: Page{Number: 2, Size: 3}, want: []uint16{4, 5, 6}},
		{page: Page{Number: 3, Size: 3}, want: []uint16{7}},
		{page: Page{Number: 4, Size: 3}, want: []uint16{}},
		{page: Page{Number: 0, Size: 3}, want: []uint16{}},
		{page: Page{Number: 1, Size: 0}, want: []uint16{}},
		{page: Page{Number: 1, Size: 100}, want: []uint16{1, 2, 3, 4, 5, 6, 7}},
		{page: Page{Number: ^uint64(0), Size: ^uint64(0)}, want: []uint16{}},
	}
	for _, tc := range cases {
		got, err := engine.Offers(tc.page)
		if err != nil {
			t.Fatalf("page %+v: %v", tc.page, err)
		}
		if !equalIDs(ids(got), tc.want) {
			t.Fatalf("page %+v: expected %v, got %v", tc.page, tc.want, ids(got))
		}
	}
}

func TestOfferRange(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	for i := 0; i < 5; i++ {
		mustLend(t, engine, testLender, 10, 1)
	}
	if _, err := engine.CancelOffer(at(testLender, testStart), 3); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := engine.OfferRange(2, 4)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if !equalIDs(ids(got), []uint16{2, 4}) {
		t.Fatalf("unexpected range: %v", ids(got))
	}
	empty, err := engine.OfferRange(4, 2)
	if err != nil || len(empty) != 0 {
		t.Fatalf("inverted range must be empty: %v %v", ids(empty), err)
	}
}

func TestOffersByPrice(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	for _, amount := range []uint64{30, 80, 50, 80, 10} {
		mustLend(t, engine, testLender, amount, 1)
	}
	page := Page{Number: 1, Size: 10}

	asc, err := engine.OffersByPrice(uint256.NewInt(10), Ascending, page)
	if err != nil {
		t.Fatalf("asc: %v", err)
	}
	if !equalIDs(ids(asc), []uint16{1, 3, 2, 4}) {
		t.Fatalf("unexpected ascending order: %v", ids(asc))
	}
	desc, err := engine.OffersByPrice(uint256.NewInt(10), Descending, page)
	if err != nil {
		t.Fatalf("desc: %v", err)
	}
	if !equalIDs(ids(desc), []uint16{2, 4, 3, 1}) {
		t.Fatalf("unexpected descending order: %v", ids(desc))
	}
	second, err := engine.OffersByPrice(nil, Descending, Page{Number: 2, Size: 2})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if !equalIDs(ids(second), []uint16{3, 1}) {
		t.Fatalf("unexpected second page: %v", ids(second))
	}
	if ParseSortOrder("DESC") != Descending || ParseSortOrder("bogus") != Ascending {
		t.Fatalf("unexpected sort order parsing")
	}
}

func TestOffersByOwnerAndBorrower(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	a := mustLend(t, engine, testLender, 10, 1)
	b := mustLend(t, engine, testStranger, 20, 1)
	c := mustLend(t, engine, testLender, 30, 1)
	mustBorrow(t, engine, testBorrower, c, "nft-c")
	mustBorrow(t, engine, testBorrower, b, "nft-b")
	page := Page{Number: 1, Size: 10}

	owned, err := engine.OffersByOwner(testLender, page)
	if err != nil {
		t.Fatalf("by owner: %v", err)
	}
	if !equalIDs(ids(owned), []uint16{a, c}) {
		t.Fatalf("unexpected owner listing: %v", ids(owned))
	}
	loans, err := engine.OffersByBorrower(testBorrower, page)
	if err != nil {
		t.Fatalf("by borrower: %v", err)
	}
	if !equalIDs(ids(loans), []uint16{b, c}) {
		t.Fatalf("unexpected borrower listing: %v", ids(loans))
	}
	firstOnly, err := engine.OffersByBorrower(testBorrower, Page{Number: 2, Size: 1})
	if err != nil {
		t.Fatalf("by borrower page 2: %v", err)
	}
	if !equalIDs(ids(firstOnly), []uint16{c}) {
		t.Fatalf("unexpected borrower page: %v", ids(firstOnly))
	}
	none, err := engine.OffersByBorrower(testLender, page)
	if err != nil || len(none) != 0 {
		t.Fatalf("lender has no loans: %v %v", ids(none), err)
	}

	stats, err := engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Open != 1 || stats.Active != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRepaymentQuote(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	id := mustLend(t, engine, testLender, 1_000_000, 2)
	if _, err := engine.RepaymentQuote(id, testStart); !errors.Is(err, ErrOfferNotAccepted) {
		t.Fatalf("expected not accepted, got %v", err)
	}
	mustBorrow(t, engine, testBorrower, id, "ape")

	quote, err := engine.RepaymentQuote(id, testStart+86_400)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Overdue || quote.Reward.Uint64() != 32_876 || quote.Due.Uint64() != 1_032_876 {
		t.Fatalf("unexpected quote: %+v", quote)
	}
	if quote.Deadline != testStart+365*24*3600 {
		t.Fatalf("unexpected deadline %d", quote.Deadline)
	}
	late, err := engine.RepaymentQuote(id, quote.Deadline+1)
	if err != nil {
		t.Fatalf("late quote: %v", err)
	}
	if !late.Overdue || !late.Due.IsZero() {
		t.Fatalf("late quote must be overdue: %+v", late)
	}
}

func TestCollectionsListing(t *testing.T) {
	engine, _, _ := newTestEngine(t, 50)
	all, err := engine.Collections(Page{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 || all[0].Name != "Punks" {
		t.Fatalf("unexpected collections: %+v", all)
	}
	if _, err := engine.Collection(3); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
