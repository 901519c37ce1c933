package articleservice

import (
	"fmt"
	"regexp"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
)

// importPolicy keeps the markup the block codec understands and strips
// scripts, event handlers and javascript: URLs.
func importPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("figure", "figcaption", "hr")
	p.AllowAttrs("src", "controls").OnElements("video")
	p.AllowAttrs("src", "type").OnElements("source")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^(language-[\w+#.-]+|video)$`)).OnElements("code", "pre", "div")
	p.AllowDataAttributes()
	return p
}

type converter struct {
	policy   *bluemonday.Policy
	markdown *md.Converter
}

func newConverter() *converter {
	return &converter{
		policy:   importPolicy(),
		markdown: md.NewConverter("", true, nil),
	}
}

// Sanitize cleans untrusted HTML before it is decoded into blocks.
func (c *converter) Sanitize(html string) string {
	return c.policy.Sanitize(html)
}

// Markdown renders encoded block HTML as Markdown.
func (c *converter) Markdown(html string) (string, error) {
	out, err := c.markdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("articleservice: convert to markdown: %w", err)
	}
	return out, nil
}
