package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MaxAttachments caps the photos carried by a single item.
const MaxAttachments = 3

// SchemaVersion is written into app.schemaVersion of new and normalized documents.
const SchemaVersion = 1

var (
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidDirection = errors.New("invalid direction")
)

type Document struct {
	App      App       `json:"app"`
	Meta     Meta      `json:"meta"`
	Sections []Section `json:"sezioni"`
	Audit    Audit     `json:"audit"`
}

type App struct {
	SchemaVersion int    `json:"schemaVersion"`
	LastSavedWith string `json:"lastSavedWith,omitempty"`
}

type Meta struct {
	SiteName       string `json:"centraleNome"`
	Year           string `json:"anno"`
	Responsible    string `json:"preposto"`
	Operators      string `json:"operatori"`
	StartDate      string `json:"dataInizio"`
	EndDate        string `json:"dataFine"`
	OperatingHours int    `json:"oreEsercizio"`
	Notes          string `json:"noteGenerali"`
}

type Section struct {
	ID    string  `json:"id"`
	Title string  `json:"titolo"`
	Order float64 `json:"order"`
	Items []Item  `json:"items"`
}

type Item struct {
	ID           string       `json:"id"`
	Text         string       `json:"testo"`
	Order        float64      `json:"order"`
	Status       Status       `json:"stato" enum:"todo,ok,ko,na"`
	Note         string       `json:"note"`
	Timestamp    string       `json:"timestamp"`
	Photos       []Attachment `json:"photos"`
	PhotoDataURL string       `json:"photoDataUrl"`
	PhotoName    string       `json:"photoName"`
}

// Attachment is an encoded image payload; it has no identity beyond its position.
type Attachment struct {
	DataURL string `json:"dataUrl"`
	Name    string `json:"name"`
}

type Audit struct {
	LastModified   string `json:"lastModified"`
	LastModifiedBy string `json:"lastModifiedBy"`
}

// Status is the check outcome of an item. The string values are the interchange codes.
type Status string

const (
	StatusPending       Status = "todo"
	StatusPass          Status = "ok"
	StatusFail          Status = "ko"
	StatusNotApplicable Status = "na"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusPass, StatusFail, StatusNotApplicable}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPass, StatusFail, StatusNotApplicable:
		return true
	}
	return false
}

// Label returns the human name of the status.
func (s Status) Label() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	case StatusNotApplicable:
		return "not-applicable"
	default:
		return "pending"
	}
}

// Glyph is the printable box used by reports and tables.
func (s Status) Glyph() string {
	switch s {
	case StatusPass:
		return "[x]"
	case StatusFail:
		return "[!]"
	case StatusNotApplicable:
		return "[-]"
	default:
		return "[ ]"
	}
}

// ParseStatus accepts interchange codes and English names, case-insensitively.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "todo", "pending":
		return StatusPending, nil
	case "ok", "pass":
		return StatusPass, nil
	case "ko", "fail", "failed":
		return StatusFail, nil
	case "na", "n/a", "not-applicable", "not_applicable":
		return StatusNotApplicable, nil
	}
	return "", fmt.Errorf("%w %q (use todo, ok, ko, na)", ErrInvalidStatus, v)
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(v string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(v))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	}
	return "", fmt.Errorf("%w %q (use up or down)", ErrInvalidDirection, v)
}

// FindSection returns a pointer into d.Sections, or nil.
func (d *Document) FindSection(id string) *Section {
	for i := range d.Sections {
		if d.Sections[i].ID == id {
			return &d.Sections[i]
		}
	}
	return nil
}

// FindItem returns a pointer into the section's items, or nil.
func (d *Document) FindItem(sectionID, itemID string) *Item {
	s := d.FindSection(sectionID)
	if s == nil {
		return nil
	}
	return s.FindItem(itemID)
}

func (s *Section) FindItem(id string) *Item {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i]
		}
	}
	return nil
}

func (s *Section) indexOf(id string) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// RemoveItem drops the item with the given id and reports whether it existed.
func (s *Section) RemoveItem(id string) bool {
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.Items = append(s.Items[:idx], s.Items[idx+1:]...)
	return true
}

// RemoveSection drops the section (and its items) and reports whether it existed.
func (d *Document) RemoveSection(id string) bool {
	for i := range d.Sections {
		if d.Sections[i].ID == id {
			d.Sections = append(d.Sections[:i], d.Sections[i+1:]...)
			return true
		}
	}
	return false
}

// SyncLegacyPhoto mirrors the first attachment into the flat photo fields
// read by older versions of the tool.
func (it *Item) SyncLegacyPhoto() {
	if len(it.Photos) == 0 {
		it.PhotoDataURL = ""
		it.PhotoName = ""
		return
	}
	it.PhotoDataURL = it.Photos[0].DataURL
	it.PhotoName = it.Photos[0].Name
}

// NoteMissing reports a failed item without a usable note.
func (it Item) NoteMissing() bool {
	return it.Status == StatusFail && strings.TrimSpace(it.Note) == ""
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Sections = make([]Section, len(d.Sections))
	for i, s := range d.Sections {
		out.Sections[i] = s.Clone()
	}
	return &out
}

// Clone returns a copy of the section that shares no slices with s.
func (s Section) Clone() Section {
	items := make([]Item, len(s.Items))
	for i, it := range s.Items {
		items[i] = it.Clone()
	}
	s.Items = items
	return s
}

// Clone returns a copy of the item that shares no slices with it.
func (it Item) Clone() Item {
	it.Photos = append([]Attachment{}, it.Photos...)
	return it
}

// Event is one entry of the workspace change log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
