package reports

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfContentWidth = 180.0 // A4 width minus margins

type PDFReport struct {
	pdf   *gofpdf.Fpdf
	tr    func(string) string
	title string
}

func NewPDFReport(doc *Document) *PDFReport {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(doc.Title, true)

	r := &PDFReport{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		title: doc.Title,
	}

	r.AddFooter()
	r.addHeader(doc)
	return r
}

// RenderPDF draws doc with the core PDF fonts.
func RenderPDF(doc *Document) ([]byte, error) {
	r := NewPDFReport(doc)
	for _, b := range doc.Blocks {
		switch b.Kind {
		case BlockHeading:
			r.AddSection(b.Text)
		case BlockSubheading:
			r.AddSubsection(b.Text)
		case BlockParagraph:
			r.AddParagraph(b.Text, b.Bold, b.Indent)
		case BlockBullet:
			r.AddBullet(b.Text)
		case BlockTable:
			r.AddTable(b.Headers, b.Rows)
		case BlockSummary:
			r.AddSummaryTable(b.Pairs)
		case BlockSpacer:
			r.pdf.Ln(6)
		}
	}
	for _, line := range doc.Footer {
		r.addFooterLine(line)
	}
	return r.Output()
}

func (r *PDFReport) addHeader(doc *Document) {
	r.pdf.AddPage()

	r.pdf.SetFont("Arial", "B", 20)
	r.pdf.SetTextColor(30, 64, 175)
	r.pdf.MultiCell(0, 10, r.tr(r.title), "", "C", false)

	if doc.Subtitle != "" {
		r.pdf.SetFont("Arial", "B", 12)
		r.pdf.SetTextColor(33, 37, 41)
		r.pdf.CellFormat(0, 8, r.tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}

	r.pdf.SetFont("Arial", "", 10)
	r.pdf.SetTextColor(108, 117, 125)
	r.pdf.CellFormat(0, 8, fmt.Sprintf("Generated: %s", doc.GeneratedAt.Format("January 2, 2006 3:04 PM")), "", 1, "C", false, 0, "")

	r.pdf.Ln(10)
}

func (r *PDFReport) AddSection(title string) {
	r.pdf.SetFont("Arial", "B", 14)
	r.pdf.SetTextColor(33, 37, 41)
	r.pdf.SetFillColor(240, 240, 240)
	r.pdf.CellFormat(0, 10, r.tr(title), "", 1, "L", true, 0, "")
	r.pdf.Ln(4)
}

func (r *PDFReport) AddSubsection(title string) {
	r.pdf.SetFont("Arial", "B", 11)
	r.pdf.SetTextColor(30, 64, 175)
	r.pdf.CellFormat(0, 8, r.tr(title), "", 1, "L", false, 0, "")
	r.pdf.Ln(1)
}

func (r *PDFReport) AddParagraph(text string, bold bool, indent int) {
	style := ""
	if bold {
		style = "B"
	}
	r.pdf.SetFont("Arial", style, 10)
	r.pdf.SetTextColor(33, 37, 41)
	left, _, _, _ := r.pdf.GetMargins()
	r.pdf.SetX(left + float64(indent)*8)
	r.pdf.MultiCell(0, 6, r.tr(text), "", "L", false)
	r.pdf.Ln(2)
}

func (r *PDFReport) AddBullet(text string) {
	r.pdf.SetFont("Arial", "", 10)
	r.pdf.SetTextColor(33, 37, 41)
	r.pdf.CellFormat(6, 6, r.tr("•"), "", 0, "L", false, 0, "")
	r.pdf.MultiCell(0, 6, r.tr(text), "", "L", false)
}

func (r *PDFReport) AddTable(headers []string, rows [][]string) {
	if len(headers) == 0 {
		return
	}
	colWidth := pdfContentWidth / float64(len(headers))
	maxChars := int(colWidth / 1.9)

	r.pdf.SetFont("Arial", "B", 9)
	r.pdf.SetFillColor(52, 58, 64)
	r.pdf.SetTextColor(255, 255, 255)
	for _, h := range headers {
		r.pdf.CellFormat(colWidth, 8, r.tr(truncate(h, maxChars)), "1", 0, "C", true, 0, "")
	}
	r.pdf.Ln(-1)

	r.pdf.SetFont("Arial", "", 9)
	r.pdf.SetTextColor(33, 37, 41)
	fill := false
	for _, row := range rows {
		if fill {
			r.pdf.SetFillColor(248, 249, 250)
		} else {
			r.pdf.SetFillColor(255, 255, 255)
		}
		for _, cell := range row {
			r.pdf.CellFormat(colWidth, 7, r.tr(truncate(cell, maxChars)), "1", 0, "L", true, 0, "")
		}
		r.pdf.Ln(-1)
		fill = !fill
	}

	r.pdf.Ln(5)
}

func (r *PDFReport) AddSummaryTable(pairs []KeyValue) {
	r.pdf.SetFont("Arial", "", 10)

	for _, p := range pairs {
		r.pdf.SetTextColor(108, 117, 125)
		r.pdf.CellFormat(60, 7, r.tr(p.Key+":"), "", 0, "L", false, 0, "")

		r.pdf.SetFont("Arial", "B", 10)
		r.pdf.SetTextColor(33, 37, 41)
		r.pdf.MultiCell(0, 7, r.tr(p.Value), "", "L", false)
		r.pdf.SetFont("Arial", "", 10)
	}

	r.pdf.Ln(5)
}

func (r *PDFReport) addFooterLine(text string) {
	r.pdf.SetFont("Arial", "I", 8)
	r.pdf.SetTextColor(128, 128, 128)
	r.pdf.MultiCell(0, 5, r.tr(text), "", "C", false)
}

func (r *PDFReport) AddFooter() {
	r.pdf.SetFooterFunc(func() {
		r.pdf.SetY(-15)
		r.pdf.SetFont("Arial", "I", 8)
		r.pdf.SetTextColor(128, 128, 128)
		r.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", r.pdf.PageNo()), "", 0, "C", false, 0, "")
	})
}

func (r *PDFReport) Output() ([]byte, error) {
	var buf bytes.Buffer
	err := r.pdf.Output(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return buf.Bytes(), nil
}
