package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"foxylend/native/lending"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{lending.ErrOfferNotFound, http.StatusNotFound, "not_found"},
		{lending.ErrCollectionNotFound, http.StatusNotFound, "not_found"},
		{lending.ErrNotAdmin, http.StatusForbidden, "unauthorized"},
		{lending.ErrInvalidBorrow, http.StatusForbidden, "unauthorized"},
		{lending.ErrOfferAlreadyAccepted, http.StatusConflict, "invalid_state"},
		{lending.ErrOfferIndexExhausted, http.StatusConflict, "invalid_state"},
		{lending.ErrDepositFail, http.StatusUnprocessableEntity, "amount_mismatch"},
		{lending.ErrUnexpectedFunds, http.StatusUnprocessableEntity, "amount_mismatch"},
		{lending.ErrTooMuchLendAmount, http.StatusUnprocessableEntity, "term_violation"},
		{lending.ErrInvalidInterestSplit, http.StatusBadRequest, "invalid_request"},
		{invalidf("limit must be a non-negative integer"), http.StatusBadRequest, "invalid_request"},
		{lending.ErrClockBeforeStart, http.StatusInternalServerError, "internal"},
		{lending.ErrRewardOverflow, http.StatusInternalServerError, "internal"},
		{fmt.Errorf("wrap: %w", lending.ErrNotExactAmount), http.StatusUnprocessableEntity, "amount_mismatch"},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

func TestWriteErrorHidesHostFaults(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("disk on fire"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"error\":\"internal error\",\"code\":\"internal\"}\n" {
		t.Fatalf("unexpected body %q", body)
	}
}
