// Package progress derives read-only completion statistics from a document.
// Nothing is cached: every call walks the model again.
package progress

import (
	"math"

	"checkline/internal/domain"
)

type Stats struct {
	Total int `json:"total"`
	Done  int `json:"done"`
	Pct   int `json:"pct"`
}

type Counts struct {
	Pending       int `json:"todo"`
	Pass          int `json:"ok"`
	Fail          int `json:"ko"`
	NotApplicable int `json:"na"`
}

type Summary struct {
	Done          int `json:"done"`
	Total         int `json:"total"`
	Pct           int `json:"pct"`
	Pass          int `json:"ok"`
	Fail          int `json:"ko"`
	Pending       int `json:"todo"`
	NotApplicable int `json:"na"`
}

func pct(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// Section counts every item; an item is done once it leaves pending.
func Section(s domain.Section) Stats {
	done := 0
	for _, it := range s.Items {
		if it.Status.Valid() && it.Status != domain.StatusPending {
			done++
		}
	}
	return Stats{Total: len(s.Items), Done: done, Pct: pct(done, len(s.Items))}
}

// Badges buckets items by status; unknown statuses land in pending.
func Badges(s domain.Section) Counts {
	var c Counts
	for _, it := range s.Items {
		switch it.Status {
		case domain.StatusPass:
			c.Pass++
		case domain.StatusFail:
			c.Fail++
		case domain.StatusNotApplicable:
			c.NotApplicable++
		default:
			c.Pending++
		}
	}
	return c
}

// Global excludes not-applicable items from Total and Done.
func Global(doc *domain.Document) Summary {
	var sum Summary
	if doc == nil {
		return sum
	}
	for _, s := range doc.Sections {
		c := Badges(s)
		sum.Pass += c.Pass
		sum.Fail += c.Fail
		sum.Pending += c.Pending
		sum.NotApplicable += c.NotApplicable
	}
	sum.Total = sum.Pass + sum.Fail + sum.Pending
	sum.Done = sum.Pass + sum.Fail
	sum.Pct = pct(sum.Done, sum.Total)
	return sum
}
