package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"checkline/internal/audit"
	"checkline/internal/config"
	"checkline/internal/dates"
	"checkline/internal/domain"
	"checkline/internal/events"
	"checkline/internal/export"
	"checkline/internal/ids"
	"checkline/internal/normalize"
	"checkline/internal/order"
	"checkline/internal/report"
)

var (
	ErrNoDocument   = errors.New("no document loaded; use new or open")
	ErrTextRequired = errors.New("text is required")
	ErrUnknownField = errors.New("unknown meta field")
	ErrEmptyPayload = errors.New("attachment payload is empty")
	ErrInvalidValue = errors.New("invalid value")
)

type Engine struct {
	Session *Session
	IDs     ids.Generator
	Config  *config.Config
	Now     func() time.Time
	Log     *zap.Logger
}

func New(s *Session, cfg *config.Config, log *zap.Logger) Engine {
	if s == nil {
		s = NewSession()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		Session: s,
		Config:  cfg,
		Now:     time.Now,
		Log:     log,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) cfg() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) ids() ids.Generator {
	g := e.IDs
	if g.Now == nil {
		g.Now = e.Now
	}
	return g
}

func (e Engine) normalizer() normalize.Normalizer {
	return normalize.Normalizer{IDs: e.ids(), MaxAttachments: e.cfg().MaxAttachments()}
}

// Document returns the loaded document.
func (e Engine) Document() (*domain.Document, error) {
	if !e.Session.HasDocument() {
		return nil, ErrNoDocument
	}
	return e.Session.Doc, nil
}

// commit finishes a successful mutation: audit stamp, lifecycle and change record.
func (e Engine) commit(evtType, entityKind, entityID string, payload events.Payload) {
	audit.Touch(e.Session.Doc, e.now())
	e.Session.State = StateActive
	e.Session.record(Change{Type: evtType, EntityKind: entityKind, EntityID: entityID, Payload: payload})
}

// --- lifecycle ---

// NewDocument replaces the session with a document built from the configured template.
func (e Engine) NewDocument() *domain.Document {
	existing := ids.Set{}
	gen := e.ids()
	doc := &domain.Document{App: domain.App{SchemaVersion: domain.SchemaVersion}}
	for i, ts := range e.cfg().Template.Sections {
		s := domain.Section{
			ID:    gen.Generate(ids.KindSection, existing),
			Title: ts.Title,
			Order: float64((i + 1) * order.Step),
			Items: []domain.Item{},
		}
		for j, text := range ts.Items {
			s.Items = append(s.Items, newItem(gen.Generate(ids.KindItem, existing), text, float64((j+1)*order.Step)))
		}
		doc.Sections = append(doc.Sections, s)
	}
	if doc.Sections == nil {
		doc.Sections = []domain.Section{}
	}
	e.Session.Doc = doc
	e.Session.FileName = ""
	e.Session.State = StateLoaded
	e.Session.record(Change{Type: "document.created", EntityKind: "document", Payload: events.Payload{"sections": len(doc.Sections)}})
	return doc
}

// Open parses and normalizes data. On error the current session is left untouched.
func (e Engine) Open(fileName string, data []byte) (*domain.Document, error) {
	doc, err := e.normalizer().Parse(data)
	if err != nil {
		return nil, err
	}
	e.Session.Doc = doc
	e.Session.FileName = fileName
	e.Session.State = StateLoaded
	e.Session.record(Change{Type: "document.opened", EntityKind: "document", Payload: events.Payload{"file": fileName, "sections": len(doc.Sections)}})
	return doc, nil
}

// Close discards the document.
func (e Engine) Close() error {
	if !e.Session.HasDocument() {
		return ErrNoDocument
	}
	e.Session.Doc = nil
	e.Session.FileName = ""
	e.Session.State = StateClosed
	e.Session.record(Change{Type: "document.closed", EntityKind: "document"})
	return nil
}

// --- meta ---

// MetaFields maps accepted field names (interchange keys and English aliases) to interchange keys.
var MetaFields = map[string]string{
	"centraleNome": "centraleNome", "site": "centraleNome",
	"anno": "anno", "year": "anno",
	"preposto": "preposto", "responsible": "preposto",
	"operatori": "operatori", "operators": "operatori",
	"dataInizio": "dataInizio", "start": "dataInizio",
	"dataFine": "dataFine", "end": "dataFine",
	"oreEsercizio": "oreEsercizio", "hours": "oreEsercizio",
	"noteGenerali": "noteGenerali", "notes": "noteGenerali",
}

func (e Engine) SetMeta(field, value string) error {
	return e.SetMetaFields(map[string]string{field: value})
}

// SetMetaFields applies all values or none: an unknown field or a bad value leaves meta unchanged.
func (e Engine) SetMetaFields(values map[string]string) error {
	doc, err := e.Document()
	if err != nil {
		return err
	}
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	m := doc.Meta
	keys := make([]string, 0, len(fields))
	for _, field := range fields {
		key, ok := MetaFields[field]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownField, field)
		}
		if err := setMetaField(&m, key, values[field]); err != nil {
			return err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	doc.Meta = m
	payload := events.Payload{"field": keys[0]}
	if len(keys) > 1 {
		payload = events.Payload{"fields": keys}
	}
	e.commit("meta.updated", "document", "", payload)
	return nil
}

func setMetaField(m *domain.Meta, key, value string) error {
	switch key {
	case "centraleNome":
		m.SiteName = value
	case "anno":
		m.Year = strings.TrimSpace(value)
	case "preposto":
		m.Responsible = value
	case "operatori":
		m.Operators = value
	case "dataInizio":
		m.StartDate = dates.Canonical(value)
	case "dataFine":
		m.EndDate = dates.Canonical(value)
	case "oreEsercizio":
		hours := 0
		if v := strings.TrimSpace(value); v != "" {
			n, err := normalize.Int(v)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: oreEsercizio must be a non-negative integer, got %q", ErrInvalidValue, value)
			}
			hours = n
		}
		m.OperatingHours = hours
	case "noteGenerali":
		m.Notes = value
	}
	return nil
}

// --- sections ---

func (e Engine) AddSection(title string) (domain.Section, error) {
	doc, err := e.Document()
	if err != nil {
		return domain.Section{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Section{}, ErrTextRequired
	}
	keys := make([]float64, len(doc.Sections))
	for i, s := range doc.Sections {
		keys[i] = s.Order
	}
	s := domain.Section{
		ID:    e.ids().Generate(ids.KindSection, ids.Collect(doc)),
		Title: title,
		Order: order.Next(keys),
		Items: []domain.Item{},
	}
	doc.Sections = append(doc.Sections, s)
	e.commit("section.added", "section", s.ID, events.Payload{"title": s.Title})
	return s, nil
}

func (e Engine) RenameSection(id, title string) (bool, error) {
	doc, err := e.Document()
	if err != nil {
		return false, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return false, ErrTextRequired
	}
	s := doc.FindSection(id)
	if s == nil {
		e.log().Debug("rename: section not found", zap.String("section_id", id))
		return false, nil
	}
	s.Title = title
	e.commit("section.renamed", "section", id, events.Payload{"title": title})
	return true, nil
}

// DeleteSection removes the section and every item in it. Confirmation is the caller's job.
func (e Engine) DeleteSection(id string) (bool, error) {
	doc, err := e.Document()
	if err != nil {
		return false, err
	}
	s := doc.FindSection(id)
	if s == nil {
		e.log().Debug("delete: section not found", zap.String("section_id", id))
		return false, nil
	}
	items := len(s.Items)
	doc.RemoveSection(id)
	e.commit("section.deleted", "section", id, events.Payload{"items": items})
	return true, nil
}

func (e Engine) MoveSection(id string, dir domain.Direction) (bool, error) {
	doc, err := e.Document()
	if err != nil {
		return false, err
	}
	if dir != domain.Up && dir != domain.Down {
		return false, fmt.Errorf("%w %q", domain.ErrInvalidDirection, dir)
	}
	at := sectionIndex(doc, id)
	if at < 0 {
		e.log().Debug("move: section not found", zap.String("section_id", id))
		return false, nil
	}
	moved := order.Move(len(doc.Sections), at, dir,
		func(i int) float64 { return doc.Sections[i].Order },
		func(i int, v float64) { doc.Sections[i].Order = v })
	if !moved {
		return false, nil
	}
	e.commit("section.moved", "section", id, events.Payload{"direction": string(dir)})
	return true, nil
}

func (e Engine) CanMoveSection(id string, dir domain.Direction) bool {
	doc, err := e.Document()
	if err != nil {
		return false
	}
	at := sectionIndex(doc, id)
	if at < 0 {
		return false
	}
	return order.CanMove(len(doc.Sections), at, dir, func(i int) float64 { return doc.Sections[i].Order })
}

func sectionIndex(doc *domain.Document, id string) int {
	for i := range doc.Sections {
		if doc.Sections[i].ID == id {
			return i
		}
	}
	return -1
}

// --- items ---

func newItem(id, text string, key float64) domain.Item {
	return domain.Item{
		ID:     id,
		Text:   text,
		Order:  key,
		Status: domain.StatusPending,
		Photos: []domain.Attachment{},
	}
}

// AddItem appends an item after the section's last one. The bool is false when the
// section does not exist.
func (e Engine) AddItem(sectionID, text string) (domain.Item, bool, error) {
	doc, err := e.Document()
	if err != nil {
		return domain.Item{}, false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Item{}, false, ErrTextRequired
	}
	s := doc.FindSection(sectionID)
	if s == nil {
		e.log().Debug("add item: section not found", zap.String("section_id", sectionID))
		return domain.Item{}, false, nil
	}
	keys := make([]float64, len(s.Items))
	for i, it := range s.Items {
		keys[i] = it.Order
	}
	it := newItem(e.ids().Generate(ids.KindItem, ids.Collect(doc)), text, order.Next(keys))
	s.Items = append(s.Items, it)
	e.commit("item.added", "item", it.ID, events.Payload{"section_id": sectionID, "text": text})
	return it, true, nil
}

func (e Engine) item(sectionID, itemID, op string) (*domain.Document, *domain.Item, error) {
	doc, err := e.Document()
	if err != nil {
		return nil, nil, err
	}
	it := doc.FindItem(sectionID, itemID)
	if it == nil {
		e.log().Debug(op+": item not found", zap.String("section_id", sectionID), zap.String("item_id", itemID))
	}
	return doc, it, nil
}

func (e Engine) RenameItem(sectionID, itemID, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		if _, err := e.Document(); err != nil {
			return false, err
		}
		return false, ErrTextRequired
	}
	_, it, err := e.item(sectionID, itemID, "rename")
	if err != nil || it == nil {
		return false, err
	}
	it.Text = text
	it.Timestamp = dates.Format(e.now())
	e.commit("item.renamed", "item", itemID, events.Payload{"section_id": sectionID, "text": text})
	return true, nil
}

func (e Engine) DeleteItem(sectionID, itemID string) (bool, error) {
	doc, err := e.Document()
	if err != nil {
		return false, err
	}
	s := doc.FindSection(sectionID)
	if s == nil || !s.RemoveItem(itemID) {
		e.log().Debug("delete: item not found", zap.String("section_id", sectionID), zap.String("item_id", itemID))
		return false, nil
	}
	e.commit("item.deleted", "item", itemID, events.Payload{"section_id": sectionID})
	return true, nil
}

func (e Engine) MoveItem(sectionID, itemID string, dir domain.Direction) (bool, error) {
	doc, err := e.Document()
	if err != nil {
		return false, err
	}
	if dir != domain.Up && dir != domain.Down {
		return false, fmt.Errorf("%w %q", domain.ErrInvalidDirection, dir)
	}
	s := doc.FindSection(sectionID)
	at := itemIndex(s, itemID)
	if at < 0 {
		e.log().Debug("move: item not found", zap.String("section_id", sectionID), zap.String("item_id", itemID))
		return false, nil
	}
	moved := order.Move(len(s.Items), at, dir,
		func(i int) float64 { return s.Items[i].Order },
		func(i int, v float64) { s.Items[i].Order = v })
	if !moved {
		return false, nil
	}
	e.commit("item.moved", "item", itemID, events.Payload{"section_id": sectionID, "direction": string(dir)})
	return true, nil
}

func (e Engine) CanMoveItem(sectionID, itemID string, dir domain.Direction) bool {
	doc, err := e.Document()
	if err != nil {
		return false
	}
	s := doc.FindSection(sectionID)
	at := itemIndex(s, itemID)
	if at < 0 {
		return false
	}
	return order.CanMove(len(s.Items), at, dir, func(i int) float64 { return s.Items[i].Order })
}

func itemIndex(s *domain.Section, id string) int {
	if s == nil {
		return -1
	}
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (e Engine) SetItemNote(sectionID, itemID, note string) (bool, error) {
	_, it, err := e.item(sectionID, itemID, "note")
	if err != nil || it == nil {
		return false, err
	}
	it.Note = note
	it.Timestamp = dates.Format(e.now())
	e.commit("item.note", "item", itemID, events.Payload{"section_id": sectionID, "note_missing": it.NoteMissing()})
	return true, nil
}

// Transition is the outcome of SetItemStatus. NoteRequired flags a failed item that
// still needs a note; the transition itself has been applied.
type Transition struct {
	Applied      bool          `json:"applied"`
	From         domain.Status `json:"from,omitempty"`
	To           domain.Status `json:"to,omitempty"`
	NoteRequired bool          `json:"note_required"`
}

// SetItemStatus moves an item to any status. There are no forbidden transitions; the
// missing-note rule is enforced at export time.
func (e Engine) SetItemStatus(sectionID, itemID string, st domain.Status) (Transition, error) {
	if !st.Valid() {
		if _, err := e.Document(); err != nil {
			return Transition{}, err
		}
		return Transition{}, fmt.Errorf("%w %q", domain.ErrInvalidStatus, st)
	}
	_, it, err := e.item(sectionID, itemID, "status")
	if err != nil || it == nil {
		return Transition{}, err
	}
	tr := Transition{Applied: true, From: it.Status, To: st}
	it.Status = st
	it.Timestamp = dates.Format(e.now())
	tr.NoteRequired = it.NoteMissing()
	e.commit("item.status", "item", itemID, events.Payload{
		"section_id":    sectionID,
		"from":          string(tr.From),
		"to":            string(tr.To),
		"note_required": tr.NoteRequired,
	})
	return tr, nil
}

// AddAttachment appends when at < 0 or at == len, replaces when 0 <= at < len.
// Appending to a full list is rejected and reported as false.
func (e Engine) AddAttachment(sectionID, itemID string, att domain.Attachment, at int) (bool, error) {
	if strings.TrimSpace(att.DataURL) == "" {
		if _, err := e.Document(); err != nil {
			return false, err
		}
		return false, ErrEmptyPayload
	}
	_, it, err := e.item(sectionID, itemID, "attach")
	if err != nil || it == nil {
		return false, err
	}
	if at >= 0 && at < len(it.Photos) {
		it.Photos[at] = att
	} else {
		if at > len(it.Photos) || len(it.Photos) >= e.cfg().MaxAttachments() {
			e.log().Debug("attach: rejected", zap.String("item_id", itemID), zap.Int("count", len(it.Photos)), zap.Int("at", at))
			return false, nil
		}
		at = len(it.Photos)
		it.Photos = append(it.Photos, att)
	}
	it.SyncLegacyPhoto()
	e.commit("item.photo.added", "item", itemID, events.Payload{"section_id": sectionID, "index": at, "name": att.Name})
	return true, nil
}

func (e Engine) RemoveAttachment(sectionID, itemID string, index int) (bool, error) {
	_, it, err := e.item(sectionID, itemID, "detach")
	if err != nil || it == nil {
		return false, err
	}
	if index < 0 || index >= len(it.Photos) {
		return false, nil
	}
	it.Photos = append(it.Photos[:index], it.Photos[index+1:]...)
	it.SyncLegacyPhoto()
	e.commit("item.photo.removed", "item", itemID, events.Payload{"section_id": sectionID, "index": index})
	return true, nil
}

// ResetStates puts every item back to pending, clears notes, timestamps and meta.
// Photos and structure are kept.
func (e Engine) ResetStates() error {
	doc, err := e.Document()
	if err != nil {
		return err
	}
	for i := range doc.Sections {
		for j := range doc.Sections[i].Items {
			it := &doc.Sections[i].Items[j]
			it.Status = domain.StatusPending
			it.Note = ""
			it.Timestamp = ""
		}
	}
	doc.Meta = domain.Meta{}
	doc.Audit = domain.Audit{}
	e.commit("document.reset", "document", "", nil)
	return nil
}

// --- output ---

// Export runs the export gate, stamps the producer version and audit, and returns the
// interchange JSON with its suggested file name. A refused export changes nothing.
func (e Engine) Export() ([]byte, string, error) {
	doc, err := e.Document()
	if err != nil {
		return nil, "", err
	}
	if err := export.Check(doc); err != nil {
		return nil, "", err
	}
	now := e.now()
	doc.App.LastSavedWith = e.cfg().ProducerVersion()
	audit.Touch(doc, now)
	data, err := export.Marshal(doc)
	if err != nil {
		return nil, "", err
	}
	name := export.SuggestedName(doc.Meta, export.KindData, now)
	e.Session.State = StateActive
	e.Session.record(Change{Type: "document.exported", EntityKind: "document", Payload: events.Payload{"file": name}})
	return data, name, nil
}

// Report renders the PDF report; blank produces the empty form.
func (e Engine) Report(blank bool) ([]byte, string, error) {
	doc, err := e.Document()
	if err != nil {
		return nil, "", err
	}
	now := e.now()
	data, err := report.Render(doc, report.Options{Blank: blank, GeneratedAt: now})
	if err != nil {
		return nil, "", err
	}
	kind := export.KindStateReport
	if blank {
		kind = export.KindBlankReport
	}
	return data, export.SuggestedName(doc.Meta, kind, now), nil
}
