package reports

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/aiact/compliance/internal/metrics"
)

type ReportFormat string

const (
	FormatPDF  ReportFormat = "pdf"
	FormatDOCX ReportFormat = "docx"
	FormatCSV  ReportFormat = "csv"
)

func (f ReportFormat) Valid() bool {
	switch f {
	case FormatPDF, FormatDOCX, FormatCSV:
		return true
	}
	return false
}

// File is an exported document ready to be downloaded.
type File struct {
	Data      []byte
	Filename  string
	MimeType  string
	Extension string
}

type Exporter struct {
	converter Converter
	logger    *slog.Logger
}

func NewExporter(converter Converter, logger *slog.Logger) *Exporter {
	if converter == nil {
		converter = NativeConverter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{converter: converter, logger: logger}
}

// Export renders doc as DOCX and, when PDF is requested, converts it. A
// failed conversion is logged and the DOCX is returned in its place, so
// the caller always gets a usable file. Errors only come from rendering
// the DOCX itself.
func (e *Exporter) Export(ctx context.Context, doc *Document, baseName string, format ReportFormat) (*File, error) {
	docx, err := RenderDOCX(doc)
	if err != nil {
		return nil, fmt.Errorf("rendering docx: %w", err)
	}

	if format == FormatPDF {
		pdf, err := e.converter.ToPDF(ctx, doc, docx)
		if err == nil && len(pdf) > 0 {
			metrics.ObserveConversion(e.converter.Name(), true)
			return &File{Data: pdf, Filename: baseName + ".pdf", MimeType: MimePDF, Extension: "pdf"}, nil
		}
		metrics.ObserveConversion(e.converter.Name(), false)
		e.logger.Warn("pdf conversion failed, returning docx",
			"converter", e.converter.Name(),
			"document", baseName,
			"error", err,
		)
	}

	return &File{Data: docx, Filename: baseName + ".docx", MimeType: MimeDOCX, Extension: "docx"}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// FileBaseName builds names like EU_AI_Act_Certificate_Credit_Scoring_2025-01-31.
func FileBaseName(kind, subject string, now time.Time) string {
	name := "EU_AI_Act_" + kind
	if subject != "" {
		name += "_" + unsafeFilenameChars.ReplaceAllString(subject, "_")
	}
	return name + "_" + now.Format("2006-01-02")
}
