// Package ids generates document-scoped identifiers shared by sections and items.
package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"checkline/internal/domain"
)

type Kind string

const (
	KindSection Kind = "sec"
	KindItem    Kind = "itm"
)

// Set is the global id namespace of one document.
type Set map[string]struct{}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Add(id string) { s[id] = struct{}{} }

// Collect returns the ids currently used by sections and items of doc.
func Collect(doc *domain.Document) Set {
	set := Set{}
	if doc == nil {
		return set
	}
	for _, s := range doc.Sections {
		if s.ID != "" {
			set.Add(s.ID)
		}
		for _, it := range s.Items {
			if it.ID != "" {
				set.Add(it.ID)
			}
		}
	}
	return set
}

type Generator struct {
	Now    func() time.Time
	Suffix func() string
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g Generator) suffix() string {
	if g.Suffix != nil {
		return g.Suffix()
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:5]
}

// Generate returns an id absent from existing and records it there.
// Callers batching several ids pass the same set.
func (g Generator) Generate(kind Kind, existing Set) string {
	for {
		t := g.now()
		id := fmt.Sprintf("%s_%s_%s", kind, t.Format("20060102_150405"), g.suffix())
		if existing.Has(id) {
			continue
		}
		existing.Add(id)
		return id
	}
}
