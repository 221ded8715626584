package reports

import "time"

type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockSubheading
	BlockParagraph
	BlockBullet
	BlockTable
	BlockSummary
	BlockSpacer
)

type KeyValue struct {
	Key   string
	Value string
}

// Block is one element of a Document. Only the fields relevant to Kind are
// set.
type Block struct {
	Kind    BlockKind
	Text    string
	Bold    bool
	Indent  int
	Headers []string
	Rows    [][]string
	Pairs   []KeyValue
}

// Document is a format-neutral report that the DOCX and PDF renderers
// both consume.
type Document struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time
	Blocks      []Block
	Footer      []string
}

func NewDocument(title string) *Document {
	return &Document{Title: title, GeneratedAt: time.Now()}
}

func (d *Document) add(b Block) *Document {
	d.Blocks = append(d.Blocks, b)
	return d
}

func (d *Document) AddSection(title string) *Document {
	return d.add(Block{Kind: BlockHeading, Text: title})
}

func (d *Document) AddSubsection(title string) *Document {
	return d.add(Block{Kind: BlockSubheading, Text: title})
}

func (d *Document) AddParagraph(text string) *Document {
	return d.add(Block{Kind: BlockParagraph, Text: text})
}

func (d *Document) AddBoldParagraph(text string) *Document {
	return d.add(Block{Kind: BlockParagraph, Text: text, Bold: true})
}

func (d *Document) AddIndented(text string, level int) *Document {
	return d.add(Block{Kind: BlockParagraph, Text: text, Indent: level})
}

func (d *Document) AddBullets(items ...string) *Document {
	for _, item := range items {
		d.add(Block{Kind: BlockBullet, Text: item})
	}
	return d
}

func (d *Document) AddTable(headers []string, rows [][]string) *Document {
	return d.add(Block{Kind: BlockTable, Headers: headers, Rows: rows})
}

// AddSummaryTable adds label/value pairs, rendered in the given order.
func (d *Document) AddSummaryTable(pairs ...KeyValue) *Document {
	return d.add(Block{Kind: BlockSummary, Pairs: pairs})
}

func (d *Document) AddSpacer() *Document {
	return d.add(Block{Kind: BlockSpacer})
}

// Text flattens the document into plain lines. Tests and logs use it.
func (d *Document) Text() []string {
	lines := []string{d.Title}
	if d.Subtitle != "" {
		lines = append(lines, d.Subtitle)
	}
	for _, b := range d.Blocks {
		switch b.Kind {
		case BlockHeading, BlockSubheading, BlockParagraph:
			lines = append(lines, b.Text)
		case BlockBullet:
			lines = append(lines, "- "+b.Text)
		case BlockTable:
			for _, row := range b.Rows {
				line := ""
				for i, cell := range row {
					if i > 0 {
						line += " | "
					}
					line += cell
				}
				lines = append(lines, line)
			}
		case BlockSummary:
			for _, p := range b.Pairs {
				lines = append(lines, p.Key+": "+p.Value)
			}
		}
	}
	return append(lines, d.Footer...)
}
