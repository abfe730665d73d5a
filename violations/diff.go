package violations

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIFF ENGINE - strict three-field comparison with an audit summary
// =============================================================================

const unknownStatus = "Unknown"

// Incoming holds the normalized fields of a source row that the diff compares.
type Incoming struct {
	Status      string
	AmountDue   decimal.Decimal
	HearingDate *time.Time
}

// DiffResult says whether a stored record is stale. Summary is empty when
// HasChanges is false.
type DiffResult struct {
	HasChanges bool
	Summary    string
}

// Diff compares status, amount due and hearing date, in that order.
func Diff(existing CaseRecord, incoming Incoming) DiffResult {
	var changes []string

	oldStatus := statusOrUnknown(existing.Status)
	newStatus := statusOrUnknown(incoming.Status)
	if oldStatus != newStatus {
		changes = append(changes, fmt.Sprintf("Status: '%s' → '%s'", oldStatus, newStatus))
	}

	oldAmount := existing.AmountDue.StringFixed(2)
	newAmount := incoming.AmountDue.StringFixed(2)
	if oldAmount != newAmount {
		changes = append(changes, fmt.Sprintf("Amount Due: $%s → $%s", oldAmount, newAmount))
	}

	if !sameInstant(existing.HearingDate, incoming.HearingDate) {
		changes = append(changes, fmt.Sprintf("Hearing Date: '%s' → '%s'",
			displayDate(existing.HearingDate), displayDate(incoming.HearingDate)))
	}

	return DiffResult{
		HasChanges: len(changes) > 0,
		Summary:    strings.Join(changes, "; "),
	}
}

func statusOrUnknown(s string) string {
	if s == "" {
		return unknownStatus
	}
	return s
}

// displayDate renders a date the way the audit trail shows it (M/D/YYYY, UTC).
func displayDate(t *time.Time) string {
	if t == nil {
		return "None"
	}
	return t.UTC().Format("1/2/2006")
}
