package content

import (
	"strings"

	"golang.org/x/net/html"
)

// Escape replaces the HTML special characters with entities. Carriage
// returns become &#13; so the parser's newline normalisation keeps them.
func Escape(s string) string {
	return html.EscapeString(s)
}

// Encode renders blocks as HTML, one top-level element per block,
// joined by newlines. Every block type has a mapping, so Encode cannot fail.
func Encode(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, encodeBlock(b))
	}
	return strings.Join(parts, "\n")
}

func encodeBlock(b Block) string {
	switch b.Type {
	case TypeHeading1:
		return wrap("h1", b.Content)
	case TypeHeading2:
		return wrap("h2", b.Content)
	case TypeHeading3:
		return wrap("h3", b.Content)
	case TypeQuote:
		return wrap("blockquote", b.Content)
	case TypeCode:
		return encodeCode(b.CodeData)
	case TypeImage:
		return `<figure><img src="` + Escape(b.ImageURL) + `" alt="` + Escape(b.ImageAlt) + `" />` +
			`<figcaption>` + Escape(b.Content) + `</figcaption></figure>`
	case TypeList:
		return encodeList("ul", b.ListItems)
	case TypeOrderedList:
		return encodeList("ol", b.ListItems)
	case TypeDivider:
		return "<hr />"
	case TypeVideo:
		return `<div class="video"><video src="` + Escape(b.VideoURL) + `" controls></video></div>`
	default:
		// paragraph, and anything that slipped past validation
		return wrap("p", b.Content)
	}
}

func wrap(tag, text string) string {
	return "<" + tag + ">" + Escape(text) + "</" + tag + ">"
}

func encodeCode(cd *CodeData) string {
	if cd == nil {
		cd = &CodeData{}
	}
	var sb strings.Builder
	sb.WriteString("<pre><code")
	if cd.Language != "" {
		sb.WriteString(` class="language-`)
		sb.WriteString(Escape(cd.Language))
		sb.WriteByte('"')
	}
	if cd.Filename != "" {
		sb.WriteString(` data-filename="`)
		sb.WriteString(Escape(cd.Filename))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	sb.WriteString(Escape(cd.Code))
	sb.WriteString("</code></pre>")
	return sb.String()
}

func encodeList(tag string, items []string) string {
	var sb strings.Builder
	sb.WriteString("<" + tag + ">")
	for _, item := range items {
		sb.WriteString(wrap("li", item))
	}
	sb.WriteString("</" + tag + ">")
	return sb.String()
}
