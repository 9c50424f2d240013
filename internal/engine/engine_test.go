package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkline/internal/config"
	"checkline/internal/domain"
	"checkline/internal/export"
	"checkline/internal/ids"
	"checkline/internal/normalize"
	"checkline/internal/order"
)

var testNow = time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	n := 0
	e := New(nil, config.Default(), nil)
	e.Now = func() time.Time { return testNow }
	e.IDs = ids.Generator{Suffix: func() string {
		n++
		return fmt.Sprintf("%05d", n)
	}}
	return e
}

func changeTypes(s *Session) []string {
	var out []string
	for _, c := range s.Drain() {
		out = append(out, c.Type)
	}
	return out
}

func TestOperationsRequireDocument(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.AddSection("x")
	assert.ErrorIs(t, err, ErrNoDocument)
	_, _, err = e.AddItem("s", "x")
	assert.ErrorIs(t, err, ErrNoDocument)
	_, err = e.SetItemStatus("s", "i", domain.StatusFail)
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.ErrorIs(t, e.ResetStates(), ErrNoDocument)
	assert.ErrorIs(t, e.Close(), ErrNoDocument)
	_, _, err = e.Export()
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestNewDocumentFromTemplate(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	assert.Equal(t, StateLoaded, e.Session.State)
	require.Len(t, doc.Sections, 5)
	assert.Equal(t, "Servizi Ausiliari Corrente Alternata", doc.Sections[0].Title)
	assert.Equal(t, 10.0, doc.Sections[0].Order)
	assert.Equal(t, 50.0, doc.Sections[4].Order)
	it := doc.Sections[0].Items[0]
	assert.Equal(t, "Ispezione e pulizia", it.Text)
	assert.Equal(t, domain.StatusPending, it.Status)
	assert.Len(t, ids.Collect(doc), 10)
	assert.Equal(t, []string{"document.created"}, changeTypes(e.Session))
}

func TestSectionCRUD(t *testing.T) {
	e := newTestEngine(t)
	e.NewDocument()

	s, err := e.AddSection("  Quadri  ")
	require.NoError(t, err)
	assert.Equal(t, "Quadri", s.Title)
	assert.Equal(t, 60.0, s.Order)
	assert.Equal(t, StateActive, e.Session.State)
	assert.Equal(t, "05/03/2024", e.Session.Doc.Audit.LastModified)

	_, err = e.AddSection("   ")
	assert.ErrorIs(t, err, ErrTextRequired)

	ok, err := e.RenameSection(s.ID, "Quadri MT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Quadri MT", e.Session.Doc.FindSection(s.ID).Title)
	assert.Equal(t, 60.0, e.Session.Doc.FindSection(s.ID).Order, "rename keeps order")

	ok, err = e.RenameSection("nope", "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteSectionCascades(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	victim := doc.Sections[1]
	itemID := victim.Items[0].ID
	keep := doc.Sections[2].Order

	ok, err := e.DeleteSection(victim.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, doc.FindSection(victim.ID))
	assert.Nil(t, doc.FindItem(victim.ID, itemID))
	assert.False(t, ids.Collect(doc).Has(itemID))
	assert.Len(t, doc.Sections, 4)
	assert.Equal(t, keep, doc.Sections[1].Order, "siblings keep their keys")

	ok, err = e.DeleteSection(victim.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMoveSectionRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	before := order.Sections(doc)
	target := doc.Sections[2].ID

	assert.True(t, e.CanMoveSection(target, domain.Up))
	moved, err := e.MoveSection(target, domain.Up)
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, target, order.Sections(doc)[1].ID)

	moved, err = e.MoveSection(target, domain.Down)
	require.NoError(t, err)
	require.True(t, moved)
	assert.Equal(t, before, order.Sections(doc))

	first := before[0].ID
	assert.False(t, e.CanMoveSection(first, domain.Up))
	moved, err = e.MoveSection(first, domain.Up)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = e.MoveSection(first, domain.Direction("sideways"))
	assert.ErrorIs(t, err, domain.ErrInvalidDirection)
}

func TestItemCRUD(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	sec := doc.Sections[0].ID

	it, ok, err := e.AddItem(sec, "Verifica serraggi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, it.Order)
	assert.Equal(t, domain.StatusPending, it.Status)
	assert.Equal(t, "", it.Timestamp)

	_, ok, err = e.AddItem("nope", "x")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = e.AddItem(sec, "")
	assert.ErrorIs(t, err, ErrTextRequired)

	ok, err = e.RenameItem(sec, it.ID, "Verifica coppie di serraggio")
	require.NoError(t, err)
	assert.True(t, ok)
	got := doc.FindItem(sec, it.ID)
	assert.Equal(t, "Verifica coppie di serraggio", got.Text)
	assert.Equal(t, "05/03/2024", got.Timestamp)

	_, err = e.RenameItem(sec, it.ID, " ")
	assert.ErrorIs(t, err, ErrTextRequired)

	moved, err := e.MoveItem(sec, it.ID, domain.Up)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, it.ID, order.Items(*doc.FindSection(sec))[0].ID)

	ok, err = e.DeleteItem(sec, it.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, doc.FindItem(sec, it.ID))
	ok, err = e.DeleteItem(sec, it.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetItemStatus(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	sec, item := doc.Sections[0].ID, doc.Sections[0].Items[0].ID
	doc.Meta.Operators = "Bianchi"

	tr, err := e.SetItemStatus(sec, item, domain.StatusFail)
	require.NoError(t, err)
	assert.Equal(t, Transition{Applied: true, From: domain.StatusPending, To: domain.StatusFail, NoteRequired: true}, tr)
	assert.Equal(t, "05/03/2024", doc.FindItem(sec, item).Timestamp)
	assert.Equal(t, "Bianchi", doc.Audit.LastModifiedBy)

	ok, err := e.SetItemNote(sec, item, "cavo danneggiato")
	require.NoError(t, err)
	require.True(t, ok)

	tr, err = e.SetItemStatus(sec, item, domain.StatusFail)
	require.NoError(t, err)
	assert.False(t, tr.NoteRequired)

	for _, st := range domain.Statuses {
		tr, err = e.SetItemStatus(sec, item, st)
		require.NoError(t, err)
		assert.Equal(t, st, tr.To)
	}

	_, err = e.SetItemStatus(sec, item, domain.Status("maybe"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	tr, err = e.SetItemStatus(sec, "nope", domain.StatusPass)
	require.NoError(t, err)
	assert.False(t, tr.Applied)
}

func TestAttachments(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	sec, item := doc.Sections[0].ID, doc.Sections[0].Items[0].ID
	photo := func(n int) domain.Attachment {
		return domain.Attachment{DataURL: fmt.Sprintf("data:image/png;base64,%d", n), Name: fmt.Sprintf("%d.png", n)}
	}

	for i := 0; i < domain.MaxAttachments; i++ {
		ok, err := e.AddAttachment(sec, item, photo(i), -1)
		require.NoError(t, err)
		require.True(t, ok)
	}
	it := doc.FindItem(sec, item)
	before := append([]domain.Attachment{}, it.Photos...)

	ok, err := e.AddAttachment(sec, item, photo(9), -1)
	require.NoError(t, err)
	assert.False(t, ok, "fourth photo is rejected")
	assert.Equal(t, before, it.Photos)

	ok, err = e.AddAttachment(sec, item, photo(7), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7.png", it.Photos[1].Name)

	ok, err = e.RemoveAttachment(sec, item, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, it.Photos, 2)
	assert.Equal(t, it.Photos[0].DataURL, it.PhotoDataURL)
	assert.Equal(t, "7.png", it.PhotoName)

	ok, err = e.RemoveAttachment(sec, item, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.AddAttachment(sec, item, domain.Attachment{Name: "empty"}, -1)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	for len(it.Photos) > 0 {
		_, err = e.RemoveAttachment(sec, item, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, "", it.PhotoDataURL)
	assert.Equal(t, "", it.PhotoName)
}

func TestResetStates(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	sec, item := doc.Sections[0].ID, doc.Sections[0].Items[0].ID
	require.NoError(t, e.SetMeta("site", "Alpha"))
	_, err := e.SetItemStatus(sec, item, domain.StatusFail)
	require.NoError(t, err)
	_, err = e.SetItemNote(sec, item, "x")
	require.NoError(t, err)
	_, err = e.AddAttachment(sec, item, domain.Attachment{DataURL: "data:image/png;base64,AA"}, -1)
	require.NoError(t, err)

	require.NoError(t, e.ResetStates())
	it := doc.FindItem(sec, item)
	assert.Equal(t, domain.StatusPending, it.Status)
	assert.Equal(t, "", it.Note)
	assert.Equal(t, "", it.Timestamp)
	assert.Len(t, it.Photos, 1, "photos survive a reset")
	assert.Equal(t, domain.Meta{}, doc.Meta)
	assert.Len(t, doc.Sections, 5)
}

func TestSetMeta(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	require.NoError(t, e.SetMeta("centraleNome", "Alpha"))
	require.NoError(t, e.SetMeta("start", "2024-03-01"))
	require.NoError(t, e.SetMeta("hours", "1200"))
	require.NoError(t, e.SetMeta("operators", "Bianchi"))
	assert.Equal(t, "Alpha", doc.Meta.SiteName)
	assert.Equal(t, "01/03/2024", doc.Meta.StartDate)
	assert.Equal(t, 1200, doc.Meta.OperatingHours)
	assert.Equal(t, "Bianchi", doc.Audit.LastModifiedBy)

	assert.ErrorIs(t, e.SetMeta("colour", "blue"), ErrUnknownField)
	assert.ErrorIs(t, e.SetMeta("hours", "-3"), ErrInvalidValue)

	require.NoError(t, e.SetMeta("hours", "0120"))
	assert.Equal(t, 120, doc.Meta.OperatingHours)
	assert.ErrorIs(t, e.SetMeta("hours", "0x10"), ErrInvalidValue)
	assert.Equal(t, 120, doc.Meta.OperatingHours)
}

func TestSetMetaFieldsAllOrNothing(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	require.NoError(t, e.SetMeta("site", "Alpha"))
	e.Session.Drain()
	before := doc.Clone()

	err := e.SetMetaFields(map[string]string{"centraleNome": "Beta", "preposto": "Rossi", "oreEsercizio": "abc"})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, before, doc)
	assert.Empty(t, e.Session.Drain())

	err = e.SetMetaFields(map[string]string{"site": "Beta", "colour": "blue"})
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, before, doc)

	require.NoError(t, e.SetMetaFields(map[string]string{"site": "Beta", "year": " 2024 ", "hours": "10"}))
	assert.Equal(t, "Beta", doc.Meta.SiteName)
	assert.Equal(t, "2024", doc.Meta.Year)
	assert.Equal(t, 10, doc.Meta.OperatingHours)
	changes := e.Session.Drain()
	require.Len(t, changes, 1)
	assert.Equal(t, "meta.updated", changes[0].Type)
	assert.ElementsMatch(t, []string{"anno", "centraleNome", "oreEsercizio"}, changes[0].Payload["fields"])
}

func TestExportGate(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	sec, item := doc.Sections[0].ID, doc.Sections[0].Items[0].ID
	require.NoError(t, e.SetMeta("site", "Centrale Alpha"))
	require.NoError(t, e.SetMeta("year", "2024"))
	_, err := e.SetItemStatus(sec, item, domain.StatusFail)
	require.NoError(t, err)
	e.Session.Drain()

	before := doc.Clone()
	_, _, err = e.Export()
	var ge *export.GateError
	require.True(t, errors.As(err, &ge))
	require.Len(t, ge.Violations, 1)
	assert.Equal(t, item, ge.Violations[0].ItemID)
	assert.Equal(t, before, doc, "refused export leaves the document untouched")
	assert.Empty(t, e.Session.Drain())

	_, err = e.SetItemNote(sec, item, "isolatore rotto")
	require.NoError(t, err)
	data, name, err := e.Export()
	require.NoError(t, err)
	assert.Equal(t, "CENTRALE_ALPHA_2024_20240305.json", name)
	assert.Equal(t, config.DefaultProducerVersion, doc.App.LastSavedWith)
	assert.Equal(t, []string{"item.note", "document.exported"}, changeTypes(e.Session))

	reopened, err := normalize.Normalizer{}.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, doc, reopened, "export round-trips through the normalizer")
}

func TestOpenInvalidKeepsSession(t *testing.T) {
	e := newTestEngine(t)
	doc := e.NewDocument()
	e.Session.Drain()

	_, err := e.Open("bad.json", []byte(`{"meta":{}}`))
	assert.ErrorIs(t, err, normalize.ErrInvalidDocument)
	assert.Same(t, doc, e.Session.Doc)
	assert.Equal(t, StateLoaded, e.Session.State)
	assert.Empty(t, e.Session.Drain())

	opened, err := e.Open("good.json", []byte(`{"meta":{"centraleNome":"B"},"sezioni":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "good.json", e.Session.FileName)
	assert.Equal(t, "B", opened.Meta.SiteName)
}

func TestCloseLifecycle(t *testing.T) {
	e := newTestEngine(t)
	e.NewDocument()
	require.NoError(t, e.Close())
	assert.Equal(t, StateClosed, e.Session.State)
	assert.False(t, e.Session.HasDocument())
	_, err := e.AddSection("x")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestReport(t *testing.T) {
	e := newTestEngine(t)
	e.NewDocument()
	data, name, err := e.Report(true)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
	assert.Equal(t, "CHECKLIST__20240305_blank.pdf", name)
}
