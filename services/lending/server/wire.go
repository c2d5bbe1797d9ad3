package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"foxylend/core/types"
	"foxylend/crypto"
	"foxylend/native/lending"
)

const requestLimit = 1 << 20 // 1 MiB

// Coin is the JSON form of an attached coin. Amounts are decimal strings.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// LendRequest posts a new offer.
type LendRequest struct {
	Amount       string `json:"amount"`
	CollectionID uint16 `json:"collection_id"`
	Funds        []Coin `json:"funds"`
}

// BorrowRequest accepts an offer with the caller's NFT.
type BorrowRequest struct {
	TokenID string `json:"token_id"`
	Funds   []Coin `json:"funds,omitempty"`
}

// FundsRequest carries the coins attached to repay.
type FundsRequest struct {
	Funds []Coin `json:"funds,omitempty"`
}

// CollectionRequest registers or replaces a collection.
type CollectionRequest struct {
	ID         uint16 `json:"id"`
	Name       string `json:"name"`
	FloorPrice string `json:"floor_price"`
	APY        uint16 `json:"apy"`
	MaxTime    uint64 `json:"max_time"`
	Contract   string `json:"contract"`
}

// FloorPriceRequest changes a collection's floor price.
type FloorPriceRequest struct {
	FloorPrice string `json:"floor_price"`
}

// AdminRequest hands the admin role to another address.
type AdminRequest struct {
	Admin string `json:"admin"`
}

// InterestSplitRequest changes the owner's share of the reward.
type InterestSplitRequest struct {
	InterestSplit uint64 `json:"interest_split"`
}

// OfferView is the JSON form of an offer.
type OfferView struct {
	ID           uint16 `json:"id"`
	Owner        string `json:"owner"`
	Amount       string `json:"amount"`
	StartTime    uint64 `json:"start_time"`
	CollectionID uint16 `json:"collection_id"`
	TokenID      string `json:"token_id"`
	Accepted     bool   `json:"accepted"`
	Borrower     string `json:"borrower"`
	Status       string `json:"status"`
}

// CollectionView is the JSON form of a collection.
type CollectionView struct {
	ID         uint16 `json:"id"`
	Name       string `json:"name"`
	FloorPrice string `json:"floor_price"`
	APY        uint16 `json:"apy"`
	MaxTime    uint64 `json:"max_time"`
	Contract   string `json:"contract"`
}

// ParamsView is the JSON form of the protocol parameters.
type ParamsView struct {
	Admin         string `json:"admin"`
	InterestSplit uint64 `json:"interest_split"`
	Denom         string `json:"denom"`
	Custodian     string `json:"custodian"`
}

// TransferView describes one movement the custody layer has to perform.
type TransferView struct {
	Kind     string `json:"kind"`
	Contract string `json:"contract,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"`
	TokenID  string `json:"token_id,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Denom    string `json:"denom,omitempty"`
}

// ResultView is returned by every mutation.
type ResultView struct {
	Action     string            `json:"action"`
	Outcome    string            `json:"outcome"`
	OfferID    uint16            `json:"offer_id,omitempty"`
	Transfers  []TransferView    `json:"transfers"`
	Events     []*types.Event    `json:"events"`
	Attributes map[string]string `json:"attributes"`
}

// QuoteView reports what repaying an offer would cost right now.
type QuoteView struct {
	OfferID  uint16 `json:"offer_id"`
	Reward   string `json:"reward"`
	Due      string `json:"due"`
	Deadline uint64 `json:"deadline"`
	Overdue  bool   `json:"overdue"`
}

// StatsView counts open offers and active loans.
type StatsView struct {
	Open   uint64 `json:"open"`
	Active uint64 `json:"active"`
}

// JobView is the JSON form of an outbox transfer instruction.
type JobView struct {
	ID        string `json:"id"`
	BatchID   string `json:"batch_id"`
	Position  int64  `json:"position"`
	Action    string `json:"action"`
	Kind      string `json:"kind"`
	OfferID   int    `json:"offer_id"`
	To        string `json:"to"`
	Amount    string `json:"amount,omitempty"`
	TokenID   string `json:"token_id,omitempty"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func addressString(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func toOfferView(o *lending.Offer) OfferView {
	return OfferView{
		ID:           o.ID,
		Owner:        addressString(o.Owner),
		Amount:       amountString(o.Amount),
		StartTime:    o.StartTime,
		CollectionID: o.CollectionID,
		TokenID:      o.TokenID,
		Accepted:     o.Accepted,
		Borrower:     addressString(o.Borrower),
		Status:       o.Status().String(),
	}
}

func toOfferViews(offers []*lending.Offer) []OfferView {
	out := make([]OfferView, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferView(o))
	}
	return out
}

func toCollectionView(c *lending.Collection) CollectionView {
	return CollectionView{
		ID:         c.ID,
		Name:       c.Name,
		FloorPrice: amountString(c.FloorPrice),
		APY:        c.APY,
		MaxTime:    c.MaxTime,
		Contract:   addressString(c.Contract),
	}
}

func toParamsView(p *lending.Params) ParamsView {
	return ParamsView{
		Admin:         addressString(p.Admin),
		InterestSplit: p.InterestSplit,
		Denom:         p.Denom,
		Custodian:     addressString(p.Custodian),
	}
}

func toResultView(res *lending.Result) ResultView {
	view := ResultView{
		Action:     res.Action,
		Outcome:    string(res.Outcome),
		OfferID:    res.OfferID,
		Transfers:  make([]TransferView, 0, len(res.Transfers)),
		Events:     make([]*types.Event, 0, len(res.Events)),
		Attributes: res.Attributes,
	}
	for _, t := range res.Transfers {
		tv := TransferView{
			Kind:     string(t.Kind),
			Contract: addressString(t.Contract),
			From:     addressString(t.From),
			To:       addressString(t.To),
			TokenID:  t.TokenID,
			Denom:    t.Denom,
		}
		if t.Amount != nil {
			tv.Amount = t.Amount.Dec()
		}
		view.Transfers = append(view.Transfers, tv)
	}
	for _, evt := range res.Events {
		view.Events = append(view.Events, evt.Clone())
	}
	return view
}

func toQuoteView(q *lending.Quote) QuoteView {
	return QuoteView{
		OfferID:  q.OfferID,
		Reward:   amountString(q.Reward),
		Due:      amountString(q.Due),
		Deadline: q.Deadline,
		Overdue:  q.Overdue,
	}
}

// badRequest marks malformed input that never reached the engine.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidf("%s required", field)
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, invalidf("%s must be a decimal integer", field)
	}
	return v, nil
}

func parseFunds(coins []Coin) ([]lending.Coin, error) {
	if len(coins) == 0 {
		return nil, nil
	}
	out := make([]lending.Coin, 0, len(coins))
	for i, c := range coins {
		amount, err := parseAmount(fmt.Sprintf("funds[%d].amount", i), c.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, lending.Coin{Denom: strings.TrimSpace(c.Denom), Amount: amount})
	}
	return out, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, invalidf("%s: %v", field, err)
	}
	return addr, nil
}

func parseID(raw string) (uint16, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return 0, invalidf("id must be an integer between 0 and 65535")
	}
	return uint16(id), nil
}

func queryUint(r *http.Request, key string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalidf("%s must be a non-negative integer", key)
	}
	return v, nil
}

func pageFromQuery(r *http.Request) (lending.Page, error) {
	number, err := queryUint(r, "page", 1)
	if err != nil {
		return lending.Page{}, err
	}
	size, err := queryUint(r, "limit", defaultPageSize)
	if err != nil {
		return lending.Page{}, err
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return lending.Page{Number: number, Size: size}, nil
}

func decodeJSON(r *http.Request, dst any) error {
	err := decodeBody(r, dst)
	if errors.Is(err, io.EOF) {
		return invalidf("request body required")
	}
	return err
}

// decodeBody returns io.EOF untouched when the body is empty.
func decodeBody(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, requestLimit)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return invalidf("invalid request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
