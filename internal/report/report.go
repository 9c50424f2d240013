// Package report renders a checklist document as a printable A4 PDF.
package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"checkline/internal/domain"
	"checkline/internal/order"
	"checkline/internal/progress"
)

type Options struct {
	// Blank renders the empty form: no statuses, notes or photos.
	Blank       bool
	GeneratedAt time.Time
	Title       string
}

const (
	pageBottom  = 277.0
	lineHeight  = 5.0
	photoMaxW   = 180.0
	photoMaxH   = 60.0
	colGlyph    = 10.0
	colText     = 110.0
	colNote     = 62.0
	leftMargin  = 14.0
	defaultHead = "Checklist"
)

// Render produces the PDF bytes for doc.
func Render(doc *domain.Document, opts Options) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("render report: nil document")
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}
	if opts.Title == "" {
		opts.Title = defaultHead
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(leftMargin, 15, leftMargin)
	pdf.SetAutoPageBreak(false, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	generated := opts.GeneratedAt.Format("02/01/2006 15:04")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(90, 5, tr("Generated: "+generated), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()

	writeHeader(pdf, tr, doc, opts)

	for _, s := range order.Sections(doc) {
		ensureSpace(pdf, 20)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 7, tr(s.Title), "", 1, "L", false, 0, "")

		items := order.Items(s)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(colGlyph, 6, "", "1", 0, "C", false, 0, "")
		pdf.CellFormat(colText, 6, "Check", "1", 0, "L", false, 0, "")
		pdf.CellFormat(colNote, 6, "Notes", "1", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, it := range items {
			glyph, note := "", ""
			if !opts.Blank {
				glyph = it.Status.Glyph()
				note = it.Note
			}
			writeRow(pdf, tr, glyph, it.Text, note)
		}
		pdf.Ln(3)
		if !opts.Blank {
			for _, it := range items {
				writePhotos(pdf, tr, it)
			}
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(pdf *gofpdf.Fpdf, tr func(string) string, doc *domain.Document, opts Options) {
	m := doc.Meta
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("%s - %s (%s)", opts.Title, m.SiteName, m.Year)), "", 1, "L", false, 0, "")

	operators := strings.TrimSpace(m.Operators)
	if operators == "" {
		operators = m.Responsible
	}
	period := m.StartDate
	if m.EndDate != "" {
		period += " -> " + m.EndDate
	}
	gp := progress.Global(doc)
	gpText := "Overall completion: 0% (no checks)"
	if gp.Total > 0 {
		gpText = fmt.Sprintf("Overall completion: %d%% (%d/%d, N/A: %d)", gp.Pct, gp.Done, gp.Total, gp.NotApplicable)
	}

	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		"Responsible: " + m.Responsible,
		"Operators: " + operators,
		"Period: " + period,
		gpText,
	} {
		pdf.CellFormat(0, lineHeight, tr(line), "", 1, "L", false, 0, "")
	}
	if m.OperatingHours > 0 {
		pdf.CellFormat(0, lineHeight, fmt.Sprintf("Operating hours: %d", m.OperatingHours), "", 1, "L", false, 0, "")
	}
	y := pdf.GetY() + 2
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(leftMargin, y, 210-leftMargin, y)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetY(y + 4)
}

func ensureSpace(pdf *gofpdf.Fpdf, h float64) {
	if pdf.GetY()+h > pageBottom {
		pdf.AddPage()
	}
}

// writeRow draws one table row whose height follows the longest wrapped cell.
func writeRow(pdf *gofpdf.Fpdf, tr func(string) string, glyph, text, note string) {
	textLines := pdf.SplitLines([]byte(tr(text)), colText-2)
	noteLines := pdf.SplitLines([]byte(tr(note)), colNote-2)
	n := len(textLines)
	if len(noteLines) > n {
		n = len(noteLines)
	}
	if n == 0 {
		n = 1
	}
	h := float64(n) * lineHeight
	ensureSpace(pdf, h)
	x, y := pdf.GetXY()
	pdf.Rect(x, y, colGlyph, h, "D")
	pdf.Rect(x+colGlyph, y, colText, h, "D")
	pdf.Rect(x+colGlyph+colText, y, colNote, h, "D")
	pdf.SetXY(x, y)
	pdf.CellFormat(colGlyph, lineHeight, glyph, "", 0, "C", false, 0, "")
	for i, l := range textLines {
		pdf.SetXY(x+colGlyph+1, y+float64(i)*lineHeight)
		pdf.CellFormat(colText-2, lineHeight, string(l), "", 0, "L", false, 0, "")
	}
	for i, l := range noteLines {
		pdf.SetXY(x+colGlyph+colText+1, y+float64(i)*lineHeight)
		pdf.CellFormat(colNote-2, lineHeight, string(l), "", 0, "L", false, 0, "")
	}
	pdf.SetXY(x, y+h)
}

func writePhotos(pdf *gofpdf.Fpdf, tr func(string) string, it domain.Item) {
	for i, att := range it.Photos {
		imgType, data, ok := decodeDataURL(att.DataURL)
		if !ok {
			continue
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil || cfg.Width == 0 || cfg.Height == 0 {
			continue
		}
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			continue
		}
		w, h := fit(float64(cfg.Width), float64(cfg.Height))
		ensureSpace(pdf, h+10)
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 4, tr("Photo: "+it.Text), "", 1, "L", false, 0, "")
		name := fmt.Sprintf("%s-%d", it.ID, i)
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: imgType}, bytes.NewReader(data))
		y := pdf.GetY()
		pdf.ImageOptions(name, leftMargin, y, w, h, false, gofpdf.ImageOptions{ImageType: imgType}, 0, "")
		pdf.SetY(y + h + 6)
	}
}

// fit scales pixel dimensions into the photo box, never enlarging.
func fit(w, h float64) (float64, float64) {
	scale := photoMaxW / w
	if s := photoMaxH / h; s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}
	return w * scale, h * scale
}

// decodeDataURL accepts base64 JPEG and PNG data URLs.
func decodeDataURL(v string) (string, []byte, bool) {
	head, payload, found := strings.Cut(v, ",")
	if !found || !strings.HasPrefix(head, "data:image/") || !strings.HasSuffix(head, ";base64") {
		return "", nil, false
	}
	var imgType string
	switch {
	case strings.HasPrefix(head, "data:image/png"):
		imgType = "PNG"
	case strings.HasPrefix(head, "data:image/jpeg"), strings.HasPrefix(head, "data:image/jpg"):
		imgType = "JPG"
	default:
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return imgType, data, true
}
