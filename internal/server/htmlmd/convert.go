// Package htmlmd renders scraped HTML as Markdown.
package htmlmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/markdown"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMaxInputBytes bounds the documents Convert accepts.
const DefaultMaxInputBytes = 8 << 20

var (
	ErrInputTooLarge = errors.New("html document too large")
	ErrEmptyDocument = errors.New("html document has no content")
)

// Converter turns an HTML document into Markdown.
type Converter interface {
	Convert(src string) (string, error)
}

// MarkdownConverter walks the parsed DOM and emits Markdown through a
// markdown.Markdown builder. Scripts, styles, frames and the document head
// are dropped.
type MarkdownConverter struct {
	MaxInputBytes int
}

func New() *MarkdownConverter {
	return &MarkdownConverter{MaxInputBytes: DefaultMaxInputBytes}
}

func (c *MarkdownConverter) Convert(src string) (string, error) {
	if c.MaxInputBytes > 0 && len(src) > c.MaxInputBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrInputTooLarge, len(src))
	}

	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	root := findFirst(doc, atom.Body)
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	w := &writer{md: markdown.NewMarkdown(&sb)}
	w.blocks(root)
	w.flush()

	if !w.wrote {
		return "", ErrEmptyDocument
	}
	if err := w.md.Build(); err != nil {
		return "", fmt.Errorf("build markdown: %w", err)
	}
	return strings.TrimSpace(sb.String()) + "\n", nil
}

type writer struct {
	md      *markdown.Markdown
	pending strings.Builder
	wrote   bool
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Head:     true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Form:     true,
}

var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Br: true, atom.Cite: true,
	atom.Code: true, atom.Em: true, atom.I: true, atom.Img: true, atom.Kbd: true,
	atom.Label: true, atom.Mark: true, atom.Q: true, atom.S: true, atom.Small: true,
	atom.Span: true, atom.Strong: true, atom.Sub: true, atom.Sup: true, atom.Time: true,
	atom.U: true,
}

func (w *writer) blocks(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		w.block(child)
	}
}

func (w *writer) block(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.addInline(spaced(n.Data))
		return
	case html.ElementNode:
	default:
		w.blocks(n)
		return
	}

	if skipped[n.DataAtom] {
		return
	}
	if inlineTags[n.DataAtom] {
		w.addInline(inlinePiece(n))
		return
	}

	w.flush()
	switch n.DataAtom {
	case atom.H1:
		w.emit(func(t string) { w.md.H1(t) }, inline(n))
	case atom.H2:
		w.emit(func(t string) { w.md.H2(t) }, inline(n))
	case atom.H3:
		w.emit(func(t string) { w.md.H3(t) }, inline(n))
	case atom.H4:
		w.emit(func(t string) { w.md.H4(t) }, inline(n))
	case atom.H5:
		w.emit(func(t string) { w.md.H5(t) }, inline(n))
	case atom.H6:
		w.emit(func(t string) { w.md.H6(t) }, inline(n))
	case atom.P:
		w.paragraph(inline(n))
	case atom.Ul:
		if items := listItems(n); len(items) > 0 {
			w.md.BulletList(items...)
			w.gap()
		}
	case atom.Ol:
		if items := listItems(n); len(items) > 0 {
			w.md.OrderedList(items...)
			w.gap()
		}
	case atom.Pre:
		w.md.CodeBlocks(markdown.SyntaxHighlight(codeLanguage(n)), strings.Trim(rawText(n), "\n"))
		w.gap()
	case atom.Blockquote:
		if t := inline(n); t != "" {
			w.md.Blockquote(t)
			w.gap()
		}
	case atom.Hr:
		w.md.HorizontalRule()
		w.gap()
	case atom.Table:
		w.table(n)
	default:
		w.blocks(n)
		w.flush()
	}
}

func (w *writer) emit(f func(string), text string) {
	if text == "" {
		return
	}
	f(text)
	w.gap()
}

func (w *writer) gap() {
	w.md.PlainText("")
	w.wrote = true
}

func (w *writer) paragraph(text string) {
	if text == "" {
		return
	}
	w.md.PlainText(text)
	w.gap()
}

// addInline appends an already rendered inline piece; spacing is
// normalized once the paragraph is flushed.
func (w *writer) addInline(s string) {
	w.pending.WriteString(s)
}

func (w *writer) flush() {
	text := collapse(w.pending.String())
	w.pending.Reset()
	w.paragraph(text)
}

func (w *writer) table(n *html.Node) {
	var header []string
	var rows [][]string

	walk(n, func(tr *html.Node) bool {
		if tr.DataAtom != atom.Tr {
			return true
		}
		var cells []string
		isHeader := true
		for cell := tr.FirstChild; cell != nil; cell = cell.NextSibling {
			if cell.Type != html.ElementNode || (cell.DataAtom != atom.Td && cell.DataAtom != atom.Th) {
				continue
			}
			if cell.DataAtom == atom.Td {
				isHeader = false
			}
			cells = append(cells, strings.ReplaceAll(inline(cell), "|", `\|`))
		}
		if len(cells) == 0 {
			return false
		}
		if header == nil && isHeader {
			header = cells
		} else {
			rows = append(rows, cells)
		}
		return false
	})

	if header == nil && len(rows) > 0 {
		header, rows = rows[0], rows[1:]
	}
	if header == nil {
		return
	}
	for i := range rows {
		rows[i] = fit(rows[i], len(header))
	}
	w.md.Table(markdown.TableSet{Header: header, Rows: rows})
	w.gap()
}

func fit(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	return append(row, make([]string, n-len(row))...)
}
