// Package export gates and serializes documents leaving the tool.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"checkline/internal/domain"
	"checkline/internal/order"
)

// Violation is a failed item whose note is still blank.
type Violation struct {
	SectionID    string `json:"section_id"`
	ItemID       string `json:"item_id"`
	SectionTitle string `json:"section_title"`
	ItemText     string `json:"item_text"`
}

func (v Violation) String() string {
	return fmt.Sprintf("fail without note: [%s] %s", v.SectionTitle, v.ItemText)
}

// GateError lists everything blocking an export.
type GateError struct {
	Violations    []Violation `json:"violations,omitempty"`
	MissingFields []string    `json:"missing_fields,omitempty"`
}

func (e *GateError) Error() string {
	var parts []string
	if n := len(e.Violations); n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed item(s) without notes", n))
	}
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing "+strings.Join(e.MissingFields, ", "))
	}
	return "export refused: " + strings.Join(parts, "; ")
}

// Validate walks sections and items in display order.
func Validate(doc *domain.Document) []Violation {
	var out []Violation
	for _, s := range order.Sections(doc) {
		for _, it := range order.Items(s) {
			if it.NoteMissing() {
				out = append(out, Violation{
					SectionID:    s.ID,
					ItemID:       it.ID,
					SectionTitle: s.Title,
					ItemText:     it.Text,
				})
			}
		}
	}
	return out
}

// Check returns a *GateError when the document may not be exported.
func Check(doc *domain.Document) error {
	gate := &GateError{Violations: Validate(doc)}
	if strings.TrimSpace(doc.Meta.SiteName) == "" {
		gate.MissingFields = append(gate.MissingFields, "centraleNome")
	}
	if strings.TrimSpace(doc.Meta.Year) == "" {
		gate.MissingFields = append(gate.MissingFields, "anno")
	}
	if len(gate.Violations) == 0 && len(gate.MissingFields) == 0 {
		return nil
	}
	return gate
}

type Kind string

const (
	KindData        Kind = "data"
	KindBlankReport Kind = "blank"
	KindStateReport Kind = "state"
)

var (
	spaces = regexp.MustCompile(`\s+`)
	unsafe = regexp.MustCompile(`[^A-Z0-9_]`)
)

// SafeName upper-cases the site name, turns whitespace into underscores and drops the rest.
func SafeName(site string) string {
	s := strings.ToUpper(strings.TrimSpace(site))
	s = spaces.ReplaceAllString(s, "_")
	return unsafe.ReplaceAllString(s, "")
}

// SuggestedName derives the output file name for kind.
func SuggestedName(meta domain.Meta, kind Kind, now time.Time) string {
	site := SafeName(meta.SiteName)
	if site == "" && kind != KindData {
		site = "CHECKLIST"
	}
	base := fmt.Sprintf("%s_%s_%s", site, strings.TrimSpace(meta.Year), now.Format("20060102"))
	switch kind {
	case KindBlankReport:
		return base + "_blank.pdf"
	case KindStateReport:
		return base + "_state.pdf"
	default:
		return base + ".json"
	}
}

// Marshal renders the interchange JSON.
func Marshal(doc *domain.Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(b, '\n'), nil
}
