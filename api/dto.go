/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the account aggregate and the ledger from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts and rates travel as decimal strings ("1003.71", "0.045"), never as
  JSON numbers. Display strings ("$1,003.71") are added for the UI.

TYPES:
  Accounts:
    AccountDTO, CategoryBalanceDTO, CreateAccountRequest, RenameAccountRequest

  Ledger:
    TransactionDTO, MoneyRequest, SetBalanceRequest, SetRateRequest,
    DaySummaryDTO

  Engine:
    ProjectionDTO, PassResultDTO, RunnerStatusDTO, RunAccrualRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - generic/account.go: Account aggregate
*/
package api

import (
	"time"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Categories    []CategoryBalanceDTO `json:"categories"`
	Total         string               `json:"total"`
	TotalDisplay  string               `json:"total_display"`
	LastAccrualAt string               `json:"last_accrual_at"`
	PendingDays   int                  `json:"pending_days"`
	Version       int64                `json:"version"`
	CreatedAt     string               `json:"created_at"`
}

// CategoryBalanceDTO is one of the three balances with its effective rate.
type CategoryBalanceDTO struct {
	Category    string `json:"category"`
	Balance     string `json:"balance"`
	Display     string `json:"display"`
	AnnualRate  string `json:"annual_rate"`
	RatePercent string `json:"rate_percent"`
	Overridden  bool   `json:"overridden"`
}

type CreateAccountRequest struct {
	Name string `json:"name"`
}

type RenameAccountRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// LEDGER
// =============================================================================

// TransactionDTO represents a ledger entry. BalanceAfter is the category
// balance right after this entry.
type TransactionDTO struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Category     string `json:"category"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction"`
	Kind         string `json:"kind"`
	IsInterest   bool   `json:"is_interest"`
	Reason       string `json:"reason,omitempty"`
	BalanceAfter string `json:"balance_after,omitempty"`
}

// MoneyRequest is the body of deposit and withdraw.
type MoneyRequest struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Reason   string `json:"reason,omitempty"`
}

type SetBalanceRequest struct {
	Balance string `json:"balance"`
}

// SetRateRequest sets an override in percent; a null rate_percent clears it.
type SetRateRequest struct {
	RatePercent *string `json:"rate_percent"`
}

// MutationResponse returns the account after a write and the entry it produced.
type MutationResponse struct {
	Account     AccountDTO      `json:"account"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

// DaySummaryDTO is one day of the history view.
type DaySummaryDTO struct {
	Date      string `json:"date"`
	Added     string `json:"added"`
	Withdrawn string `json:"withdrawn"`
	Interest  string `json:"interest"`
	Net       string `json:"net"`
	Count     int    `json:"count"`
}

// =============================================================================
// ENGINE
// =============================================================================

type ProjectionDTO struct {
	AccountID   string           `json:"account_id"`
	Category    string           `json:"category"`
	Principal   string           `json:"principal"`
	AnnualRate  string           `json:"annual_rate"`
	RatePercent string           `json:"rate_percent"`
	Horizons    []HorizonDTO     `json:"horizons"`
	Series      []SeriesPointDTO `json:"series,omitempty"`
}

type HorizonDTO struct {
	Label    string `json:"label,omitempty"`
	Days     int    `json:"days"`
	Balance  string `json:"balance"`
	Display  string `json:"display"`
	Interest string `json:"interest"`
}

type SeriesPointDTO struct {
	Day     int    `json:"day"`
	Balance string `json:"balance"`
}

// RunAccrualRequest optionally pins the pass clock. Empty means now.
type RunAccrualRequest struct {
	Now string `json:"now,omitempty"`
}

type PassResultDTO struct {
	At       string             `json:"at"`
	Accounts []AccountResultDTO `json:"accounts"`
	Posted   int                `json:"posted"`
	Failed   int                `json:"failed"`
}

type AccountResultDTO struct {
	AccountID    string           `json:"account_id"`
	DaysPassed   int              `json:"days_passed"`
	Advanced     bool             `json:"advanced"`
	Transactions []TransactionDTO `json:"transactions"`
	Error        string           `json:"error,omitempty"`
	Retryable    bool             `json:"retryable,omitempty"`
}

type RunnerStatusDTO struct {
	Schedule   string         `json:"schedule"`
	Running    bool           `json:"running"`
	Runs       int            `json:"runs"`
	LastRunAt  *string        `json:"last_run_at,omitempty"`
	NextRunAt  *string        `json:"next_run_at,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	LastResult *PassResultDTO `json:"last_result,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toAccountDTO(acc generic.Account, rates interest.RateTable, now time.Time) AccountDTO {
	dto := AccountDTO{
		ID:            string(acc.ID),
		Name:          acc.Name,
		Total:         acc.Total().String(),
		TotalDisplay:  acc.Total().Display(),
		LastAccrualAt: formatTime(acc.LastAccrualAt),
		PendingDays:   generic.WholeDaysBetween(acc.LastAccrualAt, now),
		Version:       acc.Version,
		CreatedAt:     formatTime(acc.CreatedAt),
	}
	for _, c := range generic.Categories() {
		rate := rates.EffectiveRate(acc, c)
		_, overridden := acc.RateOverride(c)
		dto.Categories = append(dto.Categories, CategoryBalanceDTO{
			Category:    string(c),
			Balance:     acc.Balance(c).String(),
			Display:     acc.Balance(c).Display(),
			AnnualRate:  rate.String(),
			RatePercent: interest.RateToPercent(rate).String(),
			Overridden:  overridden,
		})
	}
	return dto
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:         string(tx.ID),
		AccountID:  string(tx.AccountID),
		Category:   string(tx.Category),
		Date:       formatTime(tx.Date),
		Amount:     tx.Amount.String(),
		Direction:  string(tx.Direction),
		Kind:       string(tx.Kind),
		IsInterest: tx.IsInterest(),
		Reason:     tx.Reason,
	}
}

func toDaySummaryDTO(d interest.DaySummary) DaySummaryDTO {
	return DaySummaryDTO{
		Date:      d.Date.Format("2006-01-02"),
		Added:     d.Added.String(),
		Withdrawn: d.Withdrawn.String(),
		Interest:  d.Interest.String(),
		Net:       d.Net().String(),
		Count:     d.Count,
	}
}

func toPassResultDTO(r *interest.PassResult) PassResultDTO {
	dto := PassResultDTO{
		At:       formatTime(r.At),
		Accounts: make([]AccountResultDTO, 0, len(r.Accounts)),
		Posted:   len(r.Events()),
		Failed:   len(r.Failed()),
	}
	for _, a := range r.Accounts {
		res := AccountResultDTO{
			AccountID:    string(a.AccountID),
			DaysPassed:   a.DaysPassed,
			Advanced:     a.Advanced,
			Transactions: make([]TransactionDTO, 0, len(a.Transactions)),
		}
		for _, tx := range a.Transactions {
			res.Transactions = append(res.Transactions, toTransactionDTO(tx))
		}
		if a.Err != nil {
			res.Error = a.Err.Error()
			res.Retryable = generic.IsRetryable(a.Err)
		}
		dto.Accounts = append(dto.Accounts, res)
	}
	return dto
}
