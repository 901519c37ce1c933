package mcpserver

// ArticleFormatContract describes the block model that LLM consumers must
// produce when creating or updating articles.
const ArticleFormatContract = `# Folio Article Format Contract

An article is an ordered list of content blocks plus a small set of
metadata fields. Tools accept and return blocks as JSON.

## Block

` + "```" + `json
{
  "id": "optional; generated when empty",
  "type": "paragraph",
  "content": "Plain text. Never HTML; markup is escaped on save."
}
` + "```" + `

## Block types

| type           | payload                                                      |
|----------------|--------------------------------------------------------------|
| heading1       | content                                                      |
| heading2       | content                                                      |
| heading3       | content                                                      |
| paragraph      | content                                                      |
| quote          | content                                                      |
| code           | codeData: {"language": "go", "code": "...", "filename": ""}   |
| image          | imageUrl, imageAlt, content (caption)                        |
| list           | listItems: ["one", "two"]                                     |
| ordered-list   | listItems: ["first", "second"]                                |
| divider        | none                                                         |
| video          | videoUrl                                                     |

## Rules

1. **Text is plain.** Inline formatting (bold, links) is not preserved.
2. **The title** defaults to the first heading when not given explicitly.
3. **Paths** use forward slashes and end with ` + "`" + `.html` + "`" + ` (added when missing).
4. **Categories** are referenced by id. Use ` + "`" + `list_categories` + "`" + ` to look them up.
5. **New articles start as drafts.** Publishing goes through the review workflow:
   draft, submitted, in_review, approved, published.
6. **Block ids** are stable. Keep the ids returned by ` + "`" + `read_article` + "`" + ` when
   sending an edited list back.

## Media

- Upload images and videos with the ` + "`" + `upload_asset` + "`" + ` tool. It returns a
  ready-made ` + "`" + `block` + "`" + ` to insert into the article.
- Supported formats: png, jpg, jpeg, gif, webp, svg, mp4, webm.
- Stored media is served from ` + "`" + `/api/assets/<filename>` + "`" + `.

## Example

` + "```" + `json
[
  {"type": "heading1", "content": "Go channels"},
  {"type": "paragraph", "content": "Channels connect goroutines."},
  {"type": "code", "codeData": {"language": "go", "code": "ch := make(chan int)"}},
  {"type": "list", "listItems": ["unbuffered", "buffered"]}
]
` + "```" + `
`
