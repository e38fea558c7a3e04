package budget

import (
	"errors"
	"fmt"
	"time"
)

// ErrBudgetExceeded matches every BudgetExceededError.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Denial reasons.
const (
	ReasonDaily       = "daily_budget_exceeded"
	ReasonMonthly     = "monthly_budget_exceeded"
	ReasonUnavailable = "budget_store_unavailable"
)

// BudgetExceededError is returned to single-request callers on denial.
type BudgetExceededError struct {
	Reason    string
	ResetTime time.Time
}

func (e *BudgetExceededError) Error() string {
	if e.ResetTime.IsZero() {
		return fmt.Sprintf("budget exceeded: %s", e.Reason)
	}
	return fmt.Sprintf("budget exceeded: %s until %s", e.Reason, e.ResetTime.Format(time.RFC3339))
}

// Is reports whether target is ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
