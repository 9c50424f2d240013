package audit

import (
	"strings"
	"time"

	"checkline/internal/dates"
	"checkline/internal/domain"
)

// Touch stamps the last-modified metadata. It is the final step of every successful mutation.
func Touch(doc *domain.Document, now time.Time) {
	doc.Audit.LastModified = dates.Format(now)
	doc.Audit.LastModifiedBy = Actor(doc.Meta)
}

// Actor picks the operators field, falling back to the responsible party.
func Actor(m domain.Meta) string {
	if v := strings.TrimSpace(m.Operators); v != "" {
		return v
	}
	return strings.TrimSpace(m.Responsible)
}
