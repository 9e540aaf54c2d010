// Package notify is the boundary to the external notification delivery
// system. The core only composes deterministic message bodies; delivery
// (mail, queue) lives behind the Notifier interface.
package notify

import (
	"fmt"
	"sort"
	"strings"

	"captable/internal/logger"
	"captable/internal/models"
)

// SplitPartial is one shareholder's fractional remainder from a share
// split, resolved to displayable contact data.
type SplitPartial struct {
	ShareholderID string
	Number        string
	Name          string
	Email         string
	Remainder     float64
}

// Notifier delivers operator notifications. Implementations must accept
// an empty partials slice, meaning no fractional shares arose.
type Notifier interface {
	NotifyOperators(company *models.Company, partials []SplitPartial) error
}

// SplitBody renders the deterministic notification body for a split,
// enumerating each affected shareholder with the rounded remainder.
// Entries are ordered by shareholder number so repeated renders of the
// same partials are byte-identical.
func SplitBody(company *models.Company, partials []SplitPartial) string {
	sorted := make([]SplitPartial, len(partials))
	copy(sorted, partials)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var b strings.Builder
	fmt.Fprintf(&b, "Share split executed for %s.\n", company.Name)
	if len(sorted) == 0 {
		b.WriteString("No fractional shares arose.\n")
		return b.String()
	}
	b.WriteString("Fractional shares per shareholder:\n")
	for _, p := range sorted {
		fmt.Fprintf(&b, "- %s (%s, %s): %.4f\n", p.Name, p.Number, p.Email, p.Remainder)
	}
	return b.String()
}

// logNotifier writes notification bodies to the application log. It is
// the default implementation when no mail transport is configured.
type logNotifier struct{}

// NewLogNotifier creates a Notifier that logs instead of delivering.
func NewLogNotifier() Notifier {
	return &logNotifier{}
}

func (n *logNotifier) NotifyOperators(company *models.Company, partials []SplitPartial) error {
	logger.Get().Infow("operator notification",
		"company_id", company.ID,
		"operator", company.OperatorEmail,
		"body", SplitBody(company, partials),
	)
	return nil
}
