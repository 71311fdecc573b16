package report

import (
	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
)

const (
	lineHeight = 5.0
	pageWidth  = 180.0
)

// pdfRenderer walks a goldmark document and draws it with fpdf core fonts
type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	translate func(string) string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func newPDFRenderer(pdf *fpdf.Fpdf, source []byte) *pdfRenderer {
	return &pdfRenderer{
		pdf:    pdf,
		source: source,
		// Core fonts are cp1252
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
		size:      10,
	}
}

func (r *pdfRenderer) render(doc ast.Node) error {
	if err := ast.Walk(doc, r.walk); err != nil {
		return err
	}
	return r.pdf.Error()
}

func (r *pdfRenderer) setFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont("Arial", style, r.size)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			size := 11.0
			if node.Level == 1 {
				size = 15
			} else if node.Level == 2 {
				size = 12
			}
			r.pdf.SetFont("Arial", "B", size)
		} else {
			r.pdf.Ln(lineHeight + 2)
			r.setFont()
		}
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(lineHeight + 2)
		}
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.SoftLineBreak() {
				r.write(" ")
			}
			if node.HardLineBreak() {
				r.pdf.Ln(lineHeight)
			}
		}
	case *ast.AutoLink:
		if entering {
			r.write(string(node.URL(r.source)))
		}
		return ast.WalkSkipChildren, nil
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.setFont()
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", r.size)
			r.write(string(node.Text(r.source)))
			r.setFont()
		}
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.codeBlock(n)
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}
	case *ast.ListItem:
		if entering {
			r.pdf.Ln(lineHeight)
			r.pdf.SetX(15 + float64(r.listLevel)*5)
			r.write("- ")
		}
	case *ast.ThematicBreak:
		if entering {
			y := r.pdf.GetY() + 2
			r.pdf.Line(15, y, 195, y)
			r.pdf.Ln(4)
		}
	case *extast.Table:
		if entering {
			r.table(node)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) write(s string) {
	r.pdf.Write(lineHeight, r.translate(s))
}

func (r *pdfRenderer) codeBlock(n ast.Node) {
	r.pdf.Ln(2)
	r.pdf.SetFont("Courier", "", 9)
	r.pdf.SetFillColor(245, 245, 245)
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		r.pdf.MultiCell(0, lineHeight, r.translate(string(segment.Value(r.source))), "", "L", true)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.setFont()
	r.pdf.Ln(2)
}

// table draws header and rows as equal-width bordered cells
func (r *pdfRenderer) table(n *extast.Table) {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		var cells []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, string(cell.Text(r.source)))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	width := pageWidth / float64(len(rows[0]))
	r.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			r.pdf.SetFont("Arial", "B", 9)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont("Arial", "", 9)
			r.pdf.SetFillColor(255, 255, 255)
		}
		for j := range rows[0] {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			r.pdf.CellFormat(width, 6, r.translate(cell), "1", 0, "L", true, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.Ln(3)
	r.setFont()
}
