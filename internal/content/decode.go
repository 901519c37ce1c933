package content

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// Decode parses an HTML body and maps each top-level node back to a block.
// Decoding is lenient: elements outside the known table become paragraphs
// holding their flattened text, blank ones are dropped, and input the parser
// cannot read yields no blocks. Every block gets a fresh identifier.
func Decode(s string) []Block {
	nodes, err := html.ParseFragment(strings.NewReader(s), bodyContext)
	if err != nil {
		return nil
	}
	var out []Block
	for _, n := range nodes {
		if b, ok := decodeNode(n); ok {
			b.ID = NewID()
			out = append(out, b)
		}
	}
	return out
}

func decodeNode(n *html.Node) (Block, bool) {
	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return Block{}, false
		}
		return Block{Type: TypeParagraph, Content: text}, true
	case html.ElementNode:
	default:
		return Block{}, false
	}

	switch n.DataAtom {
	case atom.H1:
		return Block{Type: TypeHeading1, Content: textContent(n)}, true
	case atom.H2:
		return Block{Type: TypeHeading2, Content: textContent(n)}, true
	case atom.H3:
		return Block{Type: TypeHeading3, Content: textContent(n)}, true
	case atom.P:
		return Block{Type: TypeParagraph, Content: textContent(n)}, true
	case atom.Blockquote:
		return Block{Type: TypeQuote, Content: textContent(n)}, true
	case atom.Pre:
		return decodeCode(n), true
	case atom.Ul:
		return Block{Type: TypeList, ListItems: listItems(n)}, true
	case atom.Ol:
		return Block{Type: TypeOrderedList, ListItems: listItems(n)}, true
	case atom.Hr:
		return Block{Type: TypeDivider}, true
	case atom.Img:
		return Block{Type: TypeImage, ImageURL: attr(n, "src"), ImageAlt: attr(n, "alt")}, true
	case atom.Video:
		return Block{Type: TypeVideo, VideoURL: videoSource(n)}, true
	case atom.Figure:
		if img := find(n, atom.Img); img != nil {
			b := Block{Type: TypeImage, ImageURL: attr(img, "src"), ImageAlt: attr(img, "alt")}
			if caption := find(n, atom.Figcaption); caption != nil {
				b.Content = textContent(caption)
			}
			return b, true
		}
		if v := find(n, atom.Video); v != nil {
			return Block{Type: TypeVideo, VideoURL: videoSource(v)}, true
		}
	case atom.Div:
		if v := find(n, atom.Video); v != nil {
			return Block{Type: TypeVideo, VideoURL: videoSource(v)}, true
		}
	case atom.Script, atom.Style, atom.Template, atom.Noscript:
		return Block{}, false
	}
	return fallback(n)
}

// fallback keeps the readable text of an element outside the table.
func fallback(n *html.Node) (Block, bool) {
	text := textContent(n)
	if strings.TrimSpace(text) == "" {
		return Block{}, false
	}
	return Block{Type: TypeParagraph, Content: text}, true
}

func decodeCode(pre *html.Node) Block {
	cd := &CodeData{}
	src := pre
	if code := find(pre, atom.Code); code != nil {
		src = code
	}
	cd.Language = language(attr(src, "class"))
	if cd.Language == "" {
		cd.Language = language(attr(pre, "class"))
	}
	cd.Filename = attr(src, "data-filename")
	cd.Code = textContent(src)
	return Block{Type: TypeCode, CodeData: cd}
}

func language(class string) string {
	for _, tok := range strings.Fields(class) {
		if lang, ok := strings.CutPrefix(tok, "language-"); ok {
			return lang
		}
	}
	return ""
}

func listItems(list *html.Node) []string {
	items := []string{}
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			items = append(items, textContent(c))
		}
	}
	return items
}

func videoSource(v *html.Node) string {
	if src := attr(v, "src"); src != "" {
		return src
	}
	if s := find(v, atom.Source); s != nil {
		return attr(s, "src")
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// find returns the first descendant of n (depth-first) with the given atom.
func find(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if hit := find(c, a); hit != nil {
			return hit
		}
	}
	return nil
}

// textContent concatenates every text node under n. <br> contributes a newline.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch {
		case node.Type == html.TextNode:
			sb.WriteString(node.Data)
		case node.Type == html.ElementNode && node.DataAtom == atom.Br:
			sb.WriteByte('\n')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
