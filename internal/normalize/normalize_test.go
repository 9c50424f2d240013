package normalize

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkline/internal/domain"
	"checkline/internal/export"
	"checkline/internal/ids"
)

func testNormalizer() Normalizer {
	n := 0
	return Normalizer{IDs: ids.Generator{
		Now: func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) },
		Suffix: func() string {
			n++
			return fmt.Sprintf("%05d", n)
		},
	}}
}

func TestValidate(t *testing.T) {
	cases := map[string]any{
		"not an object":     []any{},
		"nil":               nil,
		"missing meta":      map[string]any{"sezioni": []any{}},
		"missing sezioni":   map[string]any{"meta": map[string]any{}},
		"null sezioni":      map[string]any{"meta": map[string]any{}, "sezioni": nil},
		"sezioni not array": map[string]any{"meta": map[string]any{}, "sezioni": "x"},
		"meta empty string": map[string]any{"meta": "", "sezioni": []any{}},
		"meta false":        map[string]any{"meta": false, "sezioni": []any{}},
		"meta array":        map[string]any{"meta": []any{}, "sezioni": []any{}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(raw), ErrInvalidDocument)
		})
	}
	assert.NoError(t, Validate(map[string]any{"meta": map[string]any{}, "sezioni": []any{}}))
}

func TestParseRejectsBadJSON(t *testing.T) {
	_, err := testNormalizer().Parse([]byte(`{"meta":`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, err = testNormalizer().Parse([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestNormalizeMinimal(t *testing.T) {
	doc, err := testNormalizer().Parse([]byte(`{"meta":{},"sezioni":[{"titolo":"A","items":[{"testo":"x"}]}]}`))
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaVersion, doc.App.SchemaVersion)
	require.Len(t, doc.Sections, 1)
	s := doc.Sections[0]
	assert.Equal(t, "sec_20240305_090000_00001", s.ID)
	assert.Equal(t, 10.0, s.Order)
	require.Len(t, s.Items, 1)
	it := s.Items[0]
	assert.Equal(t, "itm_20240305_090000_00002", it.ID)
	assert.Equal(t, domain.StatusPending, it.Status)
	assert.Equal(t, 10.0, it.Order)
	assert.NotNil(t, it.Photos)
	assert.Empty(t, it.Photos)
}

func TestNormalizeCoercesScalars(t *testing.T) {
	raw := `{
		"app": {"schemaVersion": "1"},
		"meta": {"centraleNome": "Alpha", "anno": 2024, "oreEsercizio": "1200",
			"dataInizio": "2024-03-01", "dataFine": "5/3/2024"},
		"audit": {"lastModified": "2024-03-05T10:00:00Z", "lastModifiedBy": " Rossi "},
		"sezioni": [{"id": "s1", "titolo": 7, "order": "20", "items": [
			{"id": "i1", "testo": "x", "stato": "OK", "order": 5, "timestamp": "2024-03-02"},
			{"id": "i2", "testo": "y", "stato": "maybe", "note": null}
		]}]
	}`
	doc, err := testNormalizer().Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "2024", doc.Meta.Year)
	assert.Equal(t, 1200, doc.Meta.OperatingHours)
	assert.Equal(t, "01/03/2024", doc.Meta.StartDate)
	assert.Equal(t, "05/03/2024", doc.Meta.EndDate)
	assert.Equal(t, "05/03/2024", doc.Audit.LastModified)
	assert.Equal(t, "Rossi", doc.Audit.LastModifiedBy)

	s := doc.Sections[0]
	assert.Equal(t, "7", s.Title)
	assert.Equal(t, 20.0, s.Order)
	assert.Equal(t, domain.StatusPass, s.Items[0].Status)
	assert.Equal(t, "02/03/2024", s.Items[0].Timestamp)
	assert.Equal(t, 5.0, s.Items[0].Order)
	assert.Equal(t, domain.StatusPending, s.Items[1].Status)
	assert.Equal(t, "", s.Items[1].Note)
	assert.Equal(t, 20.0, s.Items[1].Order)
}

func TestNormalizeReadsIntegersAsBase10(t *testing.T) {
	cases := map[string]int{
		`"0120"`: 120,
		`"007"`:  7,
		`" 42 "`: 42,
		`"0x10"`: 0,
		`"abc"`:  0,
		`12`:     12,
		`null`:   0,
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			doc, err := testNormalizer().Parse([]byte(`{"meta":{"oreEsercizio":` + in + `},"sezioni":[]}`))
			require.NoError(t, err)
			assert.Equal(t, want, doc.Meta.OperatingHours)
		})
	}

	n, err := Int("0120")
	require.NoError(t, err)
	assert.Equal(t, 120, n)
	_, err = Int("0x10")
	assert.Error(t, err)
}

func TestNormalizeRegeneratesDuplicateIDs(t *testing.T) {
	raw := `{"meta":{},"sezioni":[
		{"id":"dup","titolo":"A","items":[{"id":"dup","testo":"x"},{"id":"i1","testo":"y"}]},
		{"id":"s2","titolo":"B","items":[{"id":"i1","testo":"z"}]}
	]}`
	doc, err := testNormalizer().Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "dup", doc.Sections[0].ID)
	assert.NotEqual(t, "dup", doc.Sections[0].Items[0].ID)
	assert.Equal(t, "i1", doc.Sections[0].Items[1].ID)
	assert.NotEqual(t, "i1", doc.Sections[1].Items[0].ID)
	assert.Len(t, ids.Collect(doc), 5)
}

func TestNormalizeRepairsOrder(t *testing.T) {
	raw := `{"meta":{},"sezioni":[
		{"titolo":"A","order":10,"items":[{"testo":"a","order":1},{"testo":"b","order":1},{"testo":"c"}]},
		{"titolo":"B","order":"abc"}
	]}`
	doc, err := testNormalizer().Parse([]byte(raw))
	require.NoError(t, err)
	var itemKeys []float64
	for _, it := range doc.Sections[0].Items {
		itemKeys = append(itemKeys, it.Order)
	}
	assert.Equal(t, []float64{10, 20, 30}, itemKeys)
	assert.Equal(t, 10.0, doc.Sections[0].Order)
	assert.Equal(t, 20.0, doc.Sections[1].Order)
	assert.NotNil(t, doc.Sections[1].Items)
}

func TestNormalizeMigratesLegacyPhoto(t *testing.T) {
	raw := `{"meta":{},"sezioni":[{"titolo":"A","items":[
		{"testo":"legacy","photoDataUrl":"data:image/png;base64,AAA","photoName":"a.png"},
		{"testo":"both","photos":[{"dataUrl":"data:image/png;base64,BBB","name":"b.png"}],"photoDataUrl":"data:image/png;base64,OLD"},
		{"testo":"empty","photos":[{"dataUrl":"","name":"x"},{"name":"y"}]}
	]}]}`
	doc, err := testNormalizer().Parse([]byte(raw))
	require.NoError(t, err)
	items := doc.Sections[0].Items

	require.Len(t, items[0].Photos, 1)
	assert.Equal(t, domain.Attachment{DataURL: "data:image/png;base64,AAA", Name: "a.png"}, items[0].Photos[0])
	assert.Equal(t, "data:image/png;base64,AAA", items[0].PhotoDataURL)

	require.Len(t, items[1].Photos, 1)
	assert.Equal(t, "data:image/png;base64,BBB", items[1].PhotoDataURL, "flat fields follow the list")
	assert.Equal(t, "b.png", items[1].PhotoName)

	assert.Empty(t, items[2].Photos)
	assert.Equal(t, "", items[2].PhotoDataURL)
	assert.Equal(t, "", items[2].PhotoName)
}

func TestNormalizeCapsAttachments(t *testing.T) {
	photos := make([]map[string]string, 5)
	for i := range photos {
		photos[i] = map[string]string{"dataUrl": fmt.Sprintf("data:image/png;base64,%d", i), "name": fmt.Sprintf("%d.png", i)}
	}
	raw, err := json.Marshal(map[string]any{
		"meta":    map[string]any{},
		"sezioni": []any{map[string]any{"titolo": "A", "items": []any{map[string]any{"testo": "x", "photos": photos}}}},
	})
	require.NoError(t, err)
	doc, err := testNormalizer().Parse(raw)
	require.NoError(t, err)
	got := doc.Sections[0].Items[0].Photos
	require.Len(t, got, domain.MaxAttachments)
	assert.Equal(t, "0.png", got[0].Name)
	assert.Equal(t, "2.png", got[2].Name)

	n := testNormalizer()
	n.MaxAttachments = 1
	doc, err = n.Parse(raw)
	require.NoError(t, err)
	assert.Len(t, doc.Sections[0].Items[0].Photos, 1)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := `{"meta":{"centraleNome":"Alpha","anno":"2024","dataInizio":"2024-03-01"},"sezioni":[
		{"titolo":"A","items":[{"testo":"a","order":3},{"testo":"b","order":3,"stato":"ko","photoDataUrl":"data:image/png;base64,AA"}]},
		{"id":"s","titolo":"B","order":1,"items":[]}
	]}`
	first, err := testNormalizer().Parse([]byte(raw))
	require.NoError(t, err)
	data, err := export.Marshal(first)
	require.NoError(t, err)

	second, err := testNormalizer().Parse(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	again, err := export.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}
