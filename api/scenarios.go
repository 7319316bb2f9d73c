/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	accounts for demos. Every balance is created through the LedgerWriter and
	every interest entry through the accrual engine, so a loaded scenario
	looks exactly like one built by hand through the API.

AVAILABLE SCENARIOS:

	first-savings:   One child, fresh account, nothing accrued yet
	siblings:        Three children, rate overrides, three months of interest
	offline-catchup: Account untouched for 400 days; the next pass posts one
	                 catch-up entry per category

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create accounts with a back-dated accrual clock
 3. Deposit through the writer
 4. Optionally run accrual for past dates to build history

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "siblings"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler, writeJSON/writeError
  - interest/scheduler.go: AccrueAccount used to back-fill history
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/savings-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-savings",
		Name:        "First Savings",
		Description: "One child with pocket money in cash and a first savings deposit",
	},
	{
		ID:          "siblings",
		Name:        "Siblings",
		Description: "Three children, custom rates, three months of posted interest",
	},
	{
		ID:          "offline-catchup",
		Name:        "Offline Catch-up",
		Description: "Account not accrued for 400 days; run accrual to post the catch-up",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "first-savings":
		load = h.loadFirstSavingsScenario
	case "siblings":
		load = h.loadSiblingsScenario
	case "offline-catchup":
		load = h.loadOfflineCatchupScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.fail(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all accounts and transactions.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFirstSavingsScenario(ctx context.Context) error {
	now := h.Now()
	_, err := h.seedAccount(ctx, "Maya", now, map[generic.Category]string{
		generic.CategoryCash:    "20.00",
		generic.CategorySavings: "1000.00",
	})
	return err
}

func (h *Handler) loadSiblingsScenario(ctx context.Context) error {
	now := h.Now()
	start := now.AddDate(0, 0, -90)

	maya, err := h.seedAccount(ctx, "Maya", start, map[generic.Category]string{
		generic.CategoryCash:        "15.00",
		generic.CategorySavings:     "1000.00",
		generic.CategoryInvestments: "250.00",
	})
	if err != nil {
		return err
	}
	leo, err := h.seedAccount(ctx, "Leo", start, map[generic.Category]string{
		generic.CategoryCash:    "8.50",
		generic.CategorySavings: "320.00",
	})
	if err != nil {
		return err
	}
	ava, err := h.seedAccount(ctx, "Ava", start, map[generic.Category]string{
		generic.CategorySavings:     "45.00",
		generic.CategoryInvestments: "1200.00",
	})
	if err != nil {
		return err
	}

	// Leo gets a generous savings rate; Ava's investments grow slower.
	if err := h.setRate(ctx, leo.ID, generic.CategorySavings, "0.06"); err != nil {
		return err
	}
	if err := h.setRate(ctx, ava.ID, generic.CategoryInvestments, "0.07"); err != nil {
		return err
	}

	// Pocket money mid-way through.
	if _, _, err := h.Writer.Deposit(ctx, maya.ID, generic.CategoryCash, mustAmount("10.00"), "Birthday money", start.AddDate(0, 0, 45)); err != nil {
		return err
	}
	if _, _, err := h.Writer.Withdraw(ctx, leo.ID, generic.CategoryCash, mustAmount("5.00"), "Comic book", start.AddDate(0, 0, 50)); err != nil {
		return err
	}

	// Monthly accrual for the past three months.
	scheduler := h.Runner.Scheduler()
	for month := 1; month <= 3; month++ {
		at := start.AddDate(0, 0, 30*month)
		for _, id := range []generic.AccountID{maya.ID, leo.ID, ava.ID} {
			if res := scheduler.AccrueAccount(ctx, id, at); res.Err != nil {
				return res.Err
			}
		}
	}
	return nil
}

func (h *Handler) loadOfflineCatchupScenario(ctx context.Context) error {
	now := h.Now()
	_, err := h.seedAccount(ctx, "Sam", now.AddDate(0, 0, -400), map[generic.Category]string{
		generic.CategoryCash:        "12.00",
		generic.CategorySavings:     "1000.00",
		generic.CategoryInvestments: "500.00",
	})
	return err
}

// seedAccount creates an account at created and deposits each balance on the
// same day.
func (h *Handler) seedAccount(ctx context.Context, name string, created time.Time, balances map[generic.Category]string) (generic.Account, error) {
	acc, err := h.Writer.CreateAccount(ctx, name, created)
	if err != nil {
		return generic.Account{}, err
	}
	for _, c := range generic.Categories() {
		s, ok := balances[c]
		if !ok {
			continue
		}
		if acc, _, err = h.Writer.Deposit(ctx, acc.ID, c, mustAmount(s), "Opening balance", created); err != nil {
			return generic.Account{}, err
		}
	}
	return acc, nil
}

func (h *Handler) setRate(ctx context.Context, id generic.AccountID, c generic.Category, rate string) error {
	d := decimal.RequireFromString(rate)
	_, err := h.Writer.SetRate(ctx, id, c, &d)
	return err
}

func mustAmount(s string) generic.Amount {
	return generic.NewAmountFromDecimal(generic.MustParseDecimal(s))
}
