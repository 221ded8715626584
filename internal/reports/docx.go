package reports

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const (
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePDF  = "application/pdf"
	MimeCSV  = "text/csv"
)

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const docxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const docxDocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

const docxStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri"/><w:sz w:val="22"/></w:rPr></w:rPrDefault></w:docDefaults>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:pPr><w:spacing w:after="120"/></w:pPr></w:style>
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:pPr><w:jc w:val="center"/><w:spacing w:after="400"/></w:pPr><w:rPr><w:b/><w:color w:val="1E40AF"/><w:sz w:val="48"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Subtitle"><w:name w:val="Subtitle"/><w:basedOn w:val="Normal"/><w:pPr><w:jc w:val="center"/></w:pPr><w:rPr><w:b/><w:sz w:val="28"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:pPr><w:spacing w:before="400" w:after="200"/><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:pPr><w:spacing w:before="300" w:after="150"/><w:outlineLvl w:val="1"/></w:pPr><w:rPr><w:b/><w:color w:val="1E40AF"/><w:sz w:val="26"/></w:rPr></w:style>
<w:style w:type="table" w:styleId="TableGrid"><w:name w:val="Table Grid"/><w:tblPr><w:tblBorders><w:top w:val="single" w:sz="4" w:color="6B7280"/><w:left w:val="single" w:sz="4" w:color="6B7280"/><w:bottom w:val="single" w:sz="4" w:color="6B7280"/><w:right w:val="single" w:sz="4" w:color="6B7280"/><w:insideH w:val="single" w:sz="4" w:color="6B7280"/><w:insideV w:val="single" w:sz="4" w:color="6B7280"/></w:tblBorders></w:tblPr></w:style>
</w:styles>`

// RenderDOCX writes doc as a WordprocessingML package.
func RenderDOCX(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRootRels},
		{"word/_rels/document.xml.rels", docxDocumentRels},
		{"word/styles.xml", docxStyles},
		{"word/document.xml", documentXML(doc)},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", p.name, err)
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, fmt.Errorf("writing %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing docx archive: %w", err)
	}
	return buf.Bytes(), nil
}

type docxWriter struct {
	strings.Builder
}

func (w *docxWriter) text(s string) {
	_ = xml.EscapeText(w, []byte(s))
}

func (w *docxWriter) run(s string, bold, italic bool) {
	w.WriteString(`<w:r>`)
	if bold || italic {
		w.WriteString(`<w:rPr>`)
		if bold {
			w.WriteString(`<w:b/>`)
		}
		if italic {
			w.WriteString(`<w:i/>`)
		}
		w.WriteString(`</w:rPr>`)
	}
	w.WriteString(`<w:t xml:space="preserve">`)
	w.text(s)
	w.WriteString(`</w:t></w:r>`)
}

func (w *docxWriter) paragraph(style, s string, bold bool, indent int) {
	w.WriteString(`<w:p>`)
	if style != "" || indent > 0 {
		w.WriteString(`<w:pPr>`)
		if style != "" {
			fmt.Fprintf(w, `<w:pStyle w:val="%s"/>`, style)
		}
		if indent > 0 {
			fmt.Fprintf(w, `<w:ind w:left="%d"/>`, indent*432)
		}
		w.WriteString(`</w:pPr>`)
	}
	if s != "" {
		w.run(s, bold, false)
	}
	w.WriteString(`</w:p>`)
}

func (w *docxWriter) table(headers []string, rows [][]string) {
	w.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="5000" w:type="pct"/></w:tblPr>`)
	if len(headers) > 0 {
		w.row(headers, true)
	}
	for _, r := range rows {
		w.row(r, false)
	}
	w.WriteString(`</w:tbl>`)
	w.paragraph("", "", false, 0)
}

func (w *docxWriter) row(cells []string, header bool) {
	w.WriteString(`<w:tr>`)
	for _, c := range cells {
		w.WriteString(`<w:tc>`)
		if header {
			w.WriteString(`<w:tcPr><w:shd w:val="clear" w:color="auto" w:fill="E5E7EB"/></w:tcPr>`)
		}
		w.paragraph("", c, header, 0)
		w.WriteString(`</w:tc>`)
	}
	w.WriteString(`</w:tr>`)
}

func documentXML(doc *Document) string {
	var w docxWriter
	w.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	w.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	w.paragraph("Title", doc.Title, false, 0)
	if doc.Subtitle != "" {
		w.paragraph("Subtitle", doc.Subtitle, false, 0)
	}
	w.WriteString(`<w:p><w:pPr><w:jc w:val="center"/></w:pPr>`)
	w.run("Generated: "+doc.GeneratedAt.Format("January 2, 2006 3:04 PM"), false, true)
	w.WriteString(`</w:p>`)

	for _, b := range doc.Blocks {
		switch b.Kind {
		case BlockHeading:
			w.paragraph("Heading1", b.Text, false, 0)
		case BlockSubheading:
			w.paragraph("Heading2", b.Text, false, 0)
		case BlockParagraph:
			w.paragraph("", b.Text, b.Bold, b.Indent)
		case BlockBullet:
			w.paragraph("", "• "+b.Text, false, 1)
		case BlockTable:
			w.table(b.Headers, b.Rows)
		case BlockSummary:
			rows := make([][]string, len(b.Pairs))
			for i, p := range b.Pairs {
				rows[i] = []string{p.Key, p.Value}
			}
			w.table(nil, rows)
		case BlockSpacer:
			w.paragraph("", "", false, 0)
		}
	}

	for _, line := range doc.Footer {
		w.WriteString(`<w:p><w:pPr><w:jc w:val="center"/></w:pPr>`)
		w.run(line, false, true)
		w.WriteString(`</w:p>`)
	}

	w.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`)
	w.WriteString(`</w:body></w:document>`)
	return w.String()
}
