package htmlmd

import (
	"strings"
	"unicode"

	"github.com/nao1215/markdown"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// inline renders the children of n as a single line of Markdown.
func inline(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(inlinePiece(c))
	}
	return collapse(sb.String())
}

// inlinePiece is inlineNode with the whitespace around text kept, so that
// "a <b>x</b>." stays "a **x**." instead of gaining or losing spaces.
func inlinePiece(n *html.Node) string {
	switch {
	case n.Type == html.TextNode:
		return spaced(n.Data)
	case n.Type == html.ElementNode && n.DataAtom == atom.Br:
		return " "
	}
	return inlineNode(n)
}

func inlineNode(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return collapse(n.Data)
	case html.ElementNode:
	default:
		return ""
	}

	if skipped[n.DataAtom] {
		return ""
	}

	switch n.DataAtom {
	case atom.A:
		text := inline(n)
		href := attr(n, "href")
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return text
		}
		if text == "" {
			text = href
		}
		return markdown.Link(text, href)
	case atom.Img:
		src := attr(n, "src")
		if src == "" {
			return ""
		}
		return markdown.Image(attr(n, "alt"), src)
	case atom.Strong, atom.B:
		if t := inline(n); t != "" {
			return markdown.Bold(t)
		}
		return ""
	case atom.Em, atom.I:
		if t := inline(n); t != "" {
			return markdown.Italic(t)
		}
		return ""
	case atom.Code, atom.Kbd:
		if t := collapse(rawText(n)); t != "" {
			return markdown.Code(t)
		}
		return ""
	case atom.Br:
		return ""
	case atom.Ul, atom.Ol:
		return strings.Join(listItems(n), "; ")
	default:
		return inline(n)
	}
}

func listItems(list *html.Node) []string {
	var items []string
	for li := list.FirstChild; li != nil; li = li.NextSibling {
		if li.Type == html.ElementNode && li.DataAtom == atom.Li {
			if t := inline(li); t != "" {
				items = append(items, t)
			}
		}
	}
	return items
}

// codeLanguage reads "language-go" / "lang-go" from a <pre> or its <code>.
func codeLanguage(pre *html.Node) string {
	candidates := []*html.Node{pre}
	if code := findFirst(pre, atom.Code); code != nil {
		candidates = append(candidates, code)
	}
	for _, n := range candidates {
		for _, class := range strings.Fields(attr(n, "class")) {
			for _, prefix := range []string{"language-", "lang-"} {
				if lang, ok := strings.CutPrefix(class, prefix); ok {
					return lang
				}
			}
		}
	}
	return ""
}

func rawText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// spaced collapses whitespace runs like collapse but keeps one leading and
// one trailing space when s had them.
func spaced(s string) string {
	out := collapse(s)
	if out == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	if strings.TrimLeftFunc(s, unicode.IsSpace) != s {
		out = " " + out
	}
	if strings.TrimRightFunc(s, unicode.IsSpace) != s {
		out += " "
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// walk visits n and its descendants depth first; fn returning false skips
// the children of that node.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && c.DataAtom == a {
			found = c
			return false
		}
		return true
	})
	return found
}
