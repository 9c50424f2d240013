// Package normalize turns loosely typed input documents, including the shapes written by
// older versions of the tool, into the canonical domain.Document.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"checkline/internal/dates"
	"checkline/internal/domain"
	"checkline/internal/ids"
	"checkline/internal/order"
)

var ErrInvalidDocument = errors.New("invalid document")

// Validate is the structural precondition for Normalize: an object carrying a meta object
// and a sezioni array.
func Validate(raw any) error {
	m, ok := raw.(map[string]any)
	if !ok || m == nil {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidDocument)
	}
	if m["meta"] == nil || m["sezioni"] == nil {
		return fmt.Errorf("%w: missing meta or sezioni", ErrInvalidDocument)
	}
	if _, ok := m["meta"].(map[string]any); !ok {
		return fmt.Errorf("%w: meta must be an object", ErrInvalidDocument)
	}
	if _, ok := m["sezioni"].([]any); !ok {
		return fmt.Errorf("%w: sezioni must be an array", ErrInvalidDocument)
	}
	return nil
}

type Normalizer struct {
	IDs            ids.Generator
	MaxAttachments int
}

func (n Normalizer) max() int {
	if n.MaxAttachments <= 0 || n.MaxAttachments > domain.MaxAttachments {
		return domain.MaxAttachments
	}
	return n.MaxAttachments
}

// Parse decodes, validates and normalizes a JSON document.
func (n Normalizer) Parse(data []byte) (*domain.Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse json: %v", ErrInvalidDocument, err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}
	return n.Normalize(raw.(map[string]any)), nil
}

// Normalize fills defaults, coerces scalars and repairs ids, order keys and attachments.
// raw must have passed Validate.
func (n Normalizer) Normalize(raw map[string]any) *domain.Document {
	doc := &domain.Document{}

	app := object(raw["app"])
	doc.App.SchemaVersion = intOrZero(app["schemaVersion"])
	if doc.App.SchemaVersion <= 0 {
		doc.App.SchemaVersion = domain.SchemaVersion
	}
	doc.App.LastSavedWith = str(app["lastSavedWith"])

	doc.Meta = normalizeMeta(object(raw["meta"]))

	au := object(raw["audit"])
	doc.Audit.LastModified = dates.Canonical(str(au["lastModified"]))
	doc.Audit.LastModifiedBy = strings.TrimSpace(str(au["lastModifiedBy"]))

	rawSections := array(raw["sezioni"])
	reserved := reserveIDs(rawSections)
	seen := ids.Set{}
	uniqueID := func(v any, kind ids.Kind) string {
		id := strings.TrimSpace(str(v))
		if id == "" || seen.Has(id) {
			id = n.IDs.Generate(kind, reserved)
		}
		seen.Add(id)
		return id
	}

	doc.Sections = make([]domain.Section, 0, len(rawSections))
	sectionKeys := make([]order.Key, 0, len(rawSections))
	for _, rs := range rawSections {
		so := object(rs)
		s := domain.Section{
			ID:    uniqueID(so["id"], ids.KindSection),
			Title: str(so["titolo"]),
		}
		sectionKeys = append(sectionKeys, key(so["order"]))

		rawItems := array(so["items"])
		s.Items = make([]domain.Item, 0, len(rawItems))
		itemKeys := make([]order.Key, 0, len(rawItems))
		for _, ri := range rawItems {
			io := object(ri)
			it := domain.Item{
				ID:        uniqueID(io["id"], ids.KindItem),
				Text:      str(io["testo"]),
				Status:    status(io["stato"]),
				Note:      str(io["note"]),
				Timestamp: dates.Canonical(str(io["timestamp"])),
				Photos:    n.attachments(io),
			}
			it.SyncLegacyPhoto()
			itemKeys = append(itemKeys, key(io["order"]))
			s.Items = append(s.Items, it)
		}
		for i, v := range order.Repair(itemKeys) {
			s.Items[i].Order = v
		}
		doc.Sections = append(doc.Sections, s)
	}
	for i, v := range order.Repair(sectionKeys) {
		doc.Sections[i].Order = v
	}
	return doc
}

func normalizeMeta(m map[string]any) domain.Meta {
	return domain.Meta{
		SiteName:       str(m["centraleNome"]),
		Year:           strings.TrimSpace(str(m["anno"])),
		Responsible:    str(m["preposto"]),
		Operators:      str(m["operatori"]),
		StartDate:      dates.Canonical(str(m["dataInizio"])),
		EndDate:        dates.Canonical(str(m["dataFine"])),
		OperatingHours: intOrZero(m["oreEsercizio"]),
		Notes:          str(m["noteGenerali"]),
	}
}

// attachments builds the photo list: legacy flat fields migrate into an empty list,
// entries without payload are dropped and the rest is capped.
func (n Normalizer) attachments(io map[string]any) []domain.Attachment {
	rawPhotos := array(io["photos"])
	if len(rawPhotos) == 0 {
		if data := str(io["photoDataUrl"]); strings.TrimSpace(data) != "" {
			rawPhotos = []any{map[string]any{"dataUrl": data, "name": io["photoName"]}}
		}
	}
	out := make([]domain.Attachment, 0, len(rawPhotos))
	for _, rp := range rawPhotos {
		po := object(rp)
		data := str(po["dataUrl"])
		if strings.TrimSpace(data) == "" {
			continue
		}
		out = append(out, domain.Attachment{DataURL: data, Name: str(po["name"])})
		if len(out) == n.max() {
			break
		}
	}
	return out
}

func reserveIDs(rawSections []any) ids.Set {
	set := ids.Set{}
	for _, rs := range rawSections {
		so := object(rs)
		if id := strings.TrimSpace(str(so["id"])); id != "" {
			set.Add(id)
		}
		for _, ri := range array(so["items"]) {
			if id := strings.TrimSpace(str(object(ri)["id"])); id != "" {
				set.Add(id)
			}
		}
	}
	return set
}

func status(v any) domain.Status {
	st, err := domain.ParseStatus(str(v))
	if err != nil {
		return domain.StatusPending
	}
	return st
}

func key(v any) order.Key {
	if v == nil {
		return order.Key{}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return order.Key{}
	}
	return order.Key{Value: f, Valid: true}
}

func object(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func array(v any) []any {
	if a, ok := v.([]any); ok {
		return a
	}
	return nil
}

// Int reads an integer as a person types it: strings are base 10, so "0120" is 120 and
// "0x10" is rejected. Other values go through cast.
func Int(v any) (int, error) {
	s, ok := v.(string)
	if !ok {
		return cast.ToIntE(v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a base-10 integer", s)
	}
	return n, nil
}

func intOrZero(v any) int {
	n, _ := Int(v)
	return n
}

func str(v any) string {
	switch v.(type) {
	case nil, map[string]any, []any:
		return ""
	}
	return cast.ToString(v)
}
