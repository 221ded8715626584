package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Converter produces a PDF for a document. docx is the already rendered
// DOCX form of doc, for converters that work from the file.
type Converter interface {
	Name() string
	ToPDF(ctx context.Context, doc *Document, docx []byte) ([]byte, error)
}

var ErrConverterUnavailable = errors.New("pdf converter unavailable")

// SofficeConverter shells out to LibreOffice in headless mode.
type SofficeConverter struct {
	Binary  string
	Timeout time.Duration
}

func NewSofficeConverter(binary string, timeout time.Duration) *SofficeConverter {
	if binary == "" {
		binary = "soffice"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SofficeConverter{Binary: binary, Timeout: timeout}
}

func (c *SofficeConverter) Name() string { return "soffice" }

func (c *SofficeConverter) ToPDF(ctx context.Context, _ *Document, docx []byte) ([]byte, error) {
	bin, err := exec.LookPath(c.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
	}

	dir, err := os.MkdirTemp("", "pdf-conversion-")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "document.docx")
	if err := os.WriteFile(in, docx, 0o600); err != nil {
		return nil, fmt.Errorf("writing docx: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--headless", "--convert-to", "pdf", "--outdir", dir, in)
	cmd.Stderr = &stderr
	// soffice runs sharing one profile block on its lock file.
	cmd.Env = append(os.Environ(), "HOME="+dir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("soffice timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return nil, fmt.Errorf("soffice failed: %w: %s", err, stderr.String())
	}

	pdf, err := os.ReadFile(filepath.Join(dir, "document.pdf"))
	if err != nil {
		return nil, fmt.Errorf("reading converted pdf: %w", err)
	}
	if len(pdf) == 0 {
		return nil, errors.New("soffice produced an empty pdf")
	}
	return pdf, nil
}

// NativeConverter draws the PDF from the document model with gofpdf and
// never needs the DOCX.
type NativeConverter struct{}

func (NativeConverter) Name() string { return "native" }

func (NativeConverter) ToPDF(ctx context.Context, doc *Document, _ []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return RenderPDF(doc)
}

// NewConverter picks a converter by kind: "soffice" or "native".
func NewConverter(kind, sofficePath string, timeout time.Duration) (Converter, error) {
	switch kind {
	case "", "native":
		return NativeConverter{}, nil
	case "soffice", "libreoffice":
		return NewSofficeConverter(sofficePath, timeout), nil
	}
	return nil, fmt.Errorf("unknown converter %q", kind)
}
