/*
handlers.go - HTTP handlers for the savings API

PURPOSE:
  Translates HTTP requests into account, ledger and engine calls and renders
  the results as DTOs. Every balance change goes through interest.LedgerWriter
  so manual edits and scheduled accruals share the same per-account lock.

ENDPOINT GROUPS:
  Accounts:     list, create, get, delete, rename
  Money:        deposit, withdraw, set balance, set rate
  Ledger:       transactions (with running balance), daily history
  Engine:       projections, run accrual pass, runner status
  Scenarios:    see scenarios.go

ERROR MAPPING:
  generic.IsNotFound              -> 404
  duplicate key / version clash   -> 409
  generic.IsClientError           -> 400
  generic.IsRetryable             -> 503
  anything else                   -> 500

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route definitions
  - interest/writer.go: LedgerWriter
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

// defaultSeriesPoints is the number of chart samples returned with projections.
const defaultSeriesPoints = 24

// Store is what the API needs from persistence: the engine store plus a
// wipe for demo scenarios.
type Store interface {
	generic.Store
	Reset(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Writer *interest.LedgerWriter
	Runner *AccrualRunner
	Log    logrus.FieldLogger
	Now    func() time.Time

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires the handler. writer must be the one the runner's
// scheduler uses, so API writes and accrual passes share account locks.
func NewHandler(store Store, writer *interest.LedgerWriter, runner *AccrualRunner, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:  store,
		Writer: writer,
		Runner: runner,
		Log:    log,
		Now:    time.Now,
	}
}

func (h *Handler) rates() interest.RateTable {
	return h.Runner.Scheduler().Rates()
}

func (h *Handler) accountDTO(acc generic.Account) AccountDTO {
	return toAccountDTO(acc, h.rates(), h.Now())
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts in creation order.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, 0, len(accounts))
	for _, acc := range accounts {
		dtos = append(dtos, h.accountDTO(acc))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount opens an account with zero balances.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	acc, err := h.Writer.CreateAccount(r.Context(), req.Name, h.Now())
	if err != nil {
		h.fail(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.accountDTO(acc))
}

// GetAccount returns one account with balances and effective rates.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Store.GetAccount(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, h.accountDTO(acc))
}

// DeleteAccount removes an account and its ledger.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Writer.DeleteAccount(r.Context(), accountID(r)); err != nil {
		h.fail(w, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RenameAccount(w http.ResponseWriter, r *http.Request) {
	var req RenameAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	acc, err := h.Writer.Rename(r.Context(), accountID(r), req.Name)
	if err != nil {
		h.fail(w, "Failed to rename account", err)
		return
	}
	writeJSON(w, http.StatusOK, h.accountDTO(acc))
}

// =============================================================================
// MONEY HANDLERS
// =============================================================================

// Deposit adds funds to a category.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.Writer.Deposit)
}

// Withdraw removes funds from a category. Overdrafts are a 400.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.Writer.Withdraw)
}

type moneyFunc func(ctx context.Context, id generic.AccountID, c generic.Category, amount generic.Amount, reason string, now time.Time) (generic.Account, generic.Transaction, error)

func (h *Handler) moveMoney(w http.ResponseWriter, r *http.Request, move moneyFunc) {
	var req MoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	category, err := generic.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	amount, err := generic.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	acc, tx, err := move(r.Context(), accountID(r), category, amount, req.Reason, h.Now())
	if err != nil {
		h.fail(w, "Failed to record transaction", err)
		return
	}

	dto := toTransactionDTO(tx)
	dto.BalanceAfter = acc.Balance(category).String()
	writeJSON(w, http.StatusCreated, MutationResponse{Account: h.accountDTO(acc), Transaction: &dto})
}

// SetBalance overwrites a category balance. The difference is recorded as an
// adjustment so the ledger still sums to the balance.
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	category, err := generic.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	var req SetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	value, err := generic.ParseAmount(req.Balance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid balance", err)
		return
	}

	acc, adj, err := h.Writer.EditBalance(r.Context(), accountID(r), category, value, h.Now())
	if err != nil {
		h.fail(w, "Failed to set balance", err)
		return
	}

	resp := MutationResponse{Account: h.accountDTO(acc)}
	if adj != nil {
		dto := toTransactionDTO(*adj)
		dto.BalanceAfter = acc.Balance(category).String()
		resp.Transaction = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetRate stores a per-account rate override given in percent. A null
// rate_percent falls back to the default rate.
func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	category, err := generic.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	var req SetRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var rate *decimal.Decimal
	if req.RatePercent != nil {
		percent, err := decimal.NewFromString(*req.RatePercent)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid rate", fmt.Errorf("%w: %q", generic.ErrInvalidRate, *req.RatePercent))
			return
		}
		fraction, err := interest.RateFromPercent(percent)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid rate", err)
			return
		}
		rate = &fraction
	}

	acc, err := h.Writer.SetRate(r.Context(), accountID(r), category, rate)
	if err != nil {
		h.fail(w, "Failed to set rate", err)
		return
	}
	writeJSON(w, http.StatusOK, h.accountDTO(acc))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetTransactions returns an account's ledger, most recent first, each entry
// carrying the category balance right after it.
//
// Query: category, from, to (YYYY-MM-DD or RFC 3339, inclusive), limit.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := accountID(r)

	if _, err := h.Store.GetAccount(ctx, id); err != nil {
		h.fail(w, "Failed to get account", err)
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	// Running balances need the whole history, so filter after computing them.
	all, err := generic.NewLedger(h.Store).Query(ctx, generic.TransactionFilter{AccountID: &id})
	if err != nil {
		h.fail(w, "Failed to get transactions", err)
		return
	}
	dtos := toTransactionDTOsWithBalance(all, filter)

	if filter.Limit > 0 && len(dtos) > filter.Limit {
		dtos = dtos[:filter.Limit]
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetHistory returns per-day totals of added, withdrawn and interest.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := accountID(r)

	if _, err := h.Store.GetAccount(ctx, id); err != nil {
		h.fail(w, "Failed to get account", err)
		return
	}

	filter := generic.TransactionFilter{AccountID: &id}
	if s := r.URL.Query().Get("category"); s != "" {
		c, err := generic.ParseCategory(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid category", err)
			return
		}
		filter.Category = &c
	}

	txs, err := h.Store.QueryTransactions(ctx, filter)
	if err != nil {
		h.fail(w, "Failed to get history", err)
		return
	}

	days := interest.SummarizeByDay(txs)
	dtos := make([]DaySummaryDTO, 0, len(days))
	for _, d := range days {
		dtos = append(dtos, toDaySummaryDTO(d))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ENGINE HANDLERS
// =============================================================================

// GetProjections projects one category's balance at the requested horizons
// using the account's effective rate.
//
// Query: category (default savings), horizons ("14,30,1y"), points (chart
// samples, 0 disables the series).
func (h *Handler) GetProjections(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Store.GetAccount(r.Context(), accountID(r))
	if err != nil {
		h.fail(w, "Failed to get account", err)
		return
	}

	q := r.URL.Query()
	category := generic.CategorySavings
	if s := q.Get("category"); s != "" {
		if category, err = generic.ParseCategory(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid category", err)
			return
		}
	}
	horizons, err := interest.ParseHorizons(q.Get("horizons"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid horizons", err)
		return
	}
	points := defaultSeriesPoints
	if s := q.Get("points"); s != "" {
		if points, err = strconv.Atoi(s); err != nil || points < 0 {
			writeError(w, http.StatusBadRequest, "Invalid points", fmt.Errorf("points must be a non-negative integer, got %q", s))
			return
		}
	}

	principal := acc.Balances[category]
	rate := h.rates().EffectiveRate(acc, category)
	projected := interest.ComputeProjections(principal, rate, horizons)

	labels := make(map[int]string)
	for _, hz := range interest.StandardHorizons() {
		labels[hz.Days] = hz.Label
	}

	dto := ProjectionDTO{
		AccountID:   string(acc.ID),
		Category:    string(category),
		Principal:   principal.StringFixed(generic.CentPlaces),
		AnnualRate:  rate.String(),
		RatePercent: interest.RateToPercent(rate).String(),
		Horizons:    make([]HorizonDTO, 0, len(horizons)),
	}
	for _, days := range horizons {
		balance := generic.NewAmountFromDecimal(projected[days])
		dto.Horizons = append(dto.Horizons, HorizonDTO{
			Label:    labels[days],
			Days:     days,
			Balance:  balance.String(),
			Display:  balance.Display(),
			Interest: balance.Sub(generic.NewAmountFromDecimal(principal)).String(),
		})
	}
	if points > 0 && len(horizons) > 0 {
		for _, p := range interest.ProjectionSeries(principal, rate, horizons[len(horizons)-1], points) {
			dto.Series = append(dto.Series, SeriesPointDTO{Day: p.Day, Balance: p.Balance.StringFixed(generic.CentPlaces)})
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// RunAccrual runs one accrual pass immediately. The body may pin "now"
// (RFC 3339) to simulate time passing.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req RunAccrualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	now := h.Now()
	if req.Now != "" {
		t, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid now, expected RFC 3339", err)
			return
		}
		now = t
	}

	result, err := h.Runner.RunNow(r.Context(), now)
	if err != nil {
		h.fail(w, "Accrual pass failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPassResultDTO(result))
}

// AccrualStatus reports the runner's schedule and last pass.
func (h *Handler) AccrualStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toRunnerStatusDTO(h.Runner.Status()))
}

// =============================================================================
// HELPERS
// =============================================================================

func accountID(r *http.Request) generic.AccountID {
	return generic.AccountID(chi.URLParam(r, "id"))
}

func parseTransactionFilter(r *http.Request) (generic.TransactionFilter, error) {
	var f generic.TransactionFilter
	q := r.URL.Query()

	if s := q.Get("category"); s != "" {
		c, err := generic.ParseCategory(s)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	if s := q.Get("from"); s != "" {
		t, err := generic.ParseDate(s)
		if err != nil {
			return f, fmt.Errorf("invalid from %q: %w", s, err)
		}
		f.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := generic.ParseDate(s)
		if err != nil {
			return f, fmt.Errorf("invalid to %q: %w", s, err)
		}
		// A bare date includes the whole day.
		if len(s) == len("2006-01-02") {
			t = generic.EndOfDay(t)
		}
		f.To = &t
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", s)
		}
		f.Limit = n
	}
	return f, nil
}

// toTransactionDTOsWithBalance walks the full chronological ledger keeping a
// running balance per category, then keeps the entries filter selects,
// newest first.
func toTransactionDTOsWithBalance(chronological []generic.Transaction, filter generic.TransactionFilter) []TransactionDTO {
	running := make(map[generic.Category]generic.Amount)
	var kept []TransactionDTO
	for _, tx := range chronological {
		bal, ok := running[tx.Category]
		if !ok {
			bal = generic.ZeroAmount()
		}
		bal = bal.Add(tx.Signed())
		running[tx.Category] = bal

		if !filter.Matches(tx) {
			continue
		}
		dto := toTransactionDTO(tx)
		dto.BalanceAfter = bal.String()
		kept = append(kept, dto)
	}

	out := make([]TransactionDTO, 0, len(kept))
	for i := len(kept) - 1; i >= 0; i-- {
		out = append(out, kept[i])
	}
	return out
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrDuplicateIdempotencyKey),
		errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status its kind maps to. Server-side failures are
// logged; client mistakes are not.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).WithField("status", status).Error(message)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
