package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"checkline/internal/domain"
)

func section(statuses ...domain.Status) domain.Section {
	s := domain.Section{ID: "s"}
	for _, st := range statuses {
		s.Items = append(s.Items, domain.Item{Status: st})
	}
	return s
}

func TestMixedStatuses(t *testing.T) {
	s := section(domain.StatusPass, domain.StatusPass, domain.StatusFail, domain.StatusNotApplicable, domain.StatusPending)
	doc := &domain.Document{Sections: []domain.Section{s}}

	g := Global(doc)
	assert.Equal(t, 4, g.Total)
	assert.Equal(t, 3, g.Done)
	assert.Equal(t, 75, g.Pct)
	assert.Equal(t, 1, g.NotApplicable)
	assert.Equal(t, 2, g.Pass)
	assert.Equal(t, 1, g.Fail)
	assert.Equal(t, 1, g.Pending)

	assert.Equal(t, Stats{Total: 5, Done: 4, Pct: 80}, Section(s))
	assert.Equal(t, Counts{Pending: 1, Pass: 2, Fail: 1, NotApplicable: 1}, Badges(s))
}

func TestEmpty(t *testing.T) {
	assert.Equal(t, Stats{}, Section(domain.Section{}))
	assert.Equal(t, Summary{}, Global(&domain.Document{}))
	assert.Equal(t, Summary{}, Global(nil))

	onlyNA := &domain.Document{Sections: []domain.Section{section(domain.StatusNotApplicable)}}
	g := Global(onlyNA)
	assert.Equal(t, 0, g.Total)
	assert.Equal(t, 0, g.Pct)
	assert.Equal(t, 1, g.NotApplicable)
}

func TestRounding(t *testing.T) {
	s := section(domain.StatusPass, domain.StatusPending, domain.StatusPending)
	assert.Equal(t, 33, Section(s).Pct)
	s = section(domain.StatusPass, domain.StatusPass, domain.StatusPending)
	assert.Equal(t, 67, Section(s).Pct)
}
