// Package content converts article bodies between ordered content blocks and HTML.
package content

import (
	"strings"

	"github.com/google/uuid"
)

// BlockType discriminates the payload a Block carries.
type BlockType string

const (
	TypeHeading1    BlockType = "heading1"
	TypeHeading2    BlockType = "heading2"
	TypeHeading3    BlockType = "heading3"
	TypeParagraph   BlockType = "paragraph"
	TypeQuote       BlockType = "quote"
	TypeCode        BlockType = "code"
	TypeImage       BlockType = "image"
	TypeList        BlockType = "list"
	TypeOrderedList BlockType = "ordered-list"
	TypeDivider     BlockType = "divider"
	TypeVideo       BlockType = "video"
)

// Types lists every supported block type in table order.
var Types = []BlockType{
	TypeHeading1, TypeHeading2, TypeHeading3,
	TypeParagraph, TypeQuote, TypeCode, TypeImage,
	TypeList, TypeOrderedList, TypeDivider, TypeVideo,
}

// Valid reports whether t is a known block type.
func (t BlockType) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// CodeData is the payload of a code block.
type CodeData struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Filename string `json:"filename,omitempty"`
}

// Block is one unit of article content. Exactly one payload shape is
// populated for a given Type; image blocks use Content as the caption.
type Block struct {
	ID        string    `json:"id"`
	Type      BlockType `json:"type"`
	Content   string    `json:"content"`
	CodeData  *CodeData `json:"codeData,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	ImageAlt  string    `json:"imageAlt,omitempty"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	ListItems []string  `json:"listItems,omitempty"`
}

// NewID returns a fresh block identifier.
func NewID() string {
	return uuid.NewString()
}

// NewBlock returns an empty block of type t with a fresh identifier.
func NewBlock(t BlockType) Block {
	b := Block{ID: NewID(), Type: t}
	switch t {
	case TypeCode:
		b.CodeData = &CodeData{}
	case TypeList, TypeOrderedList:
		b.ListItems = []string{}
	}
	return b
}

// EnsureIDs assigns identifiers to blocks that arrived without one.
func EnsureIDs(blocks []Block) []Block {
	for i := range blocks {
		if blocks[i].ID == "" {
			blocks[i].ID = NewID()
		}
	}
	return blocks
}

// Text flattens the readable text of blocks, one block per line.
// It feeds the search index.
func Text(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		var line string
		switch b.Type {
		case TypeCode:
			if b.CodeData != nil {
				line = b.CodeData.Code
			}
		case TypeImage:
			line = strings.TrimSpace(b.ImageAlt + " " + b.Content)
		case TypeList, TypeOrderedList:
			line = strings.Join(b.ListItems, " ")
		case TypeDivider, TypeVideo:
			continue
		default:
			line = b.Content
		}
		if line == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// MediaURLs returns the image and video URLs referenced by blocks,
// deduplicated in first-seen order.
func MediaURLs(blocks []Block) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range blocks {
		var u string
		switch b.Type {
		case TypeImage:
			u = b.ImageURL
		case TypeVideo:
			u = b.VideoURL
		}
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// FirstHeading returns the content of the first heading1 block, or "".
func FirstHeading(blocks []Block) string {
	for _, b := range blocks {
		if b.Type == TypeHeading1 {
			return strings.TrimSpace(b.Content)
		}
	}
	return ""
}
