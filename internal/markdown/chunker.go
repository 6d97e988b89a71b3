package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is a contiguous part of a markdown document that starts at an H1 or H2.
type Section struct {
	Index      int    // Position in document (0, 1, 2...)
	HeaderPath string // Hierarchy: "# Leave Policy > ## Maternity"
	Content    string // Section text WITH header path prepended
	RawContent string // Section text as written, heading line included
}

// Chunker splits markdown documents at H1 and H2 boundaries.
type Chunker struct {
	parser goldmark.Markdown
}

// NewChunker creates a chunker backed by goldmark with auto heading IDs.
func NewChunker() *Chunker {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{
		parser: md,
	}
}

// heading is one split point, in document order.
type heading struct {
	path  string
	start int // Byte offset of the heading's first line
}

// ChunkDocument splits source into non-overlapping sections. Text before the first heading
// becomes a section with an empty header path. A document without H1/H2 headings is one section.
func (c *Chunker) ChunkDocument(source []byte) ([]Section, error) {
	reader := text.NewReader(source)
	doc := c.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var headings []heading
	collectHeadings(doc, source, tree.Items, nil, &headings)

	var sections []Section
	add := func(path string, raw []byte) {
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return
		}
		content := body
		if path != "" {
			content = path + "\n\n" + body
		}
		sections = append(sections, Section{
			Index:      len(sections),
			HeaderPath: path,
			Content:    content,
			RawContent: body,
		})
	}

	if len(headings) == 0 {
		add("", source)
		return sections, nil
	}

	add("", source[:headings[0].start])
	for i, h := range headings {
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		add(h.path, source[h.start:end])
	}
	return sections, nil
}

// collectHeadings flattens the TOC into document order with header paths.
func collectHeadings(doc ast.Node, source []byte, items toc.Items, ancestors []string, out *[]heading) {
	for _, item := range items {
		current := ancestors

		// An item without ID stands in for a skipped level and only groups its children.
		if len(item.ID) > 0 {
			current = append(append([]string(nil), ancestors...), string(item.Title))
			if node := findHeaderByID(doc, string(item.ID)); node != nil && node.Lines().Len() > 0 {
				*out = append(*out, heading{
					path:  formatHeaderPath(current, node.(*ast.Heading).Level),
					start: lineStart(source, node.Lines().At(0).Start),
				})
			}
		}

		if len(item.Items) > 0 {
			collectHeadings(doc, source, item.Items, current, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string ending at the given level.
// Example: ["Leave", "Maternity"], 2 -> "# Leave > ## Maternity"
func formatHeaderPath(path []string, level int) string {
	// An H2 with no H1 above it has a one-element path.
	offset := max(level-len(path), 0)
	parts := make([]string, len(path))
	for i, segment := range path {
		parts[i] = fmt.Sprintf("%s %s", strings.Repeat("#", i+1+offset), segment)
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok {
				if b, isBytes := headingID.([]byte); isBytes && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart returns the offset of the beginning of the line containing pos.
// Heading segments begin after the "#" marker, so the marker is recovered this way.
func lineStart(source []byte, pos int) int {
	return bytes.LastIndexByte(source[:pos], '\n') + 1
}
