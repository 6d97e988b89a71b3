package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bull/policy-rag/internal/markdown"
	"github.com/bull/policy-rag/internal/storage"
)

// ErrUnsupportedFile is returned for file types the parser cannot read.
var ErrUnsupportedFile = errors.New("unsupported file type")

// pageBreak separates pages in plain-text exports.
const pageBreak = "\f"

// Parser converts files into chunked storage documents.
type Parser struct {
	chunker  *markdown.Chunker
	splitter Splitter
}

// NewParser creates a Parser.
func NewParser(chunker *markdown.Chunker, splitter Splitter) *Parser {
	return &Parser{chunker: chunker, splitter: splitter}
}

// Parse splits f by type: .txt by form-feed pages, .md by H1/H2 sections.
// Every page or section is then cut by the splitter.
func (p *Parser) Parse(f *File) ([]storage.Document, error) {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".txt":
		return p.parseText(f), nil
	case ".md", ".markdown":
		return p.parseMarkdown(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, f.Path)
	}
}

func (p *Parser) parseText(f *File) []storage.Document {
	pages := strings.Split(string(f.Content), pageBreak)

	var docs []storage.Document
	for i, page := range pages {
		label := ""
		// A file without page breaks has no meaningful page number.
		if len(pages) > 1 {
			label = strconv.Itoa(i + 1)
		}
		for _, piece := range p.splitter.Split(page) {
			docs = append(docs, storage.Document{
				Text:       piece,
				SourceFile: f.Path,
				Page:       label,
			})
		}
	}
	return docs
}

func (p *Parser) parseMarkdown(f *File) ([]storage.Document, error) {
	sections, err := p.chunker.ChunkDocument(f.Content)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", f.Path, err)
	}

	var docs []storage.Document
	for _, section := range sections {
		for _, piece := range p.splitter.Split(section.RawContent) {
			text := piece
			if section.HeaderPath != "" {
				text = section.HeaderPath + "\n\n" + piece
			}
			docs = append(docs, storage.Document{
				Text:       text,
				SourceFile: f.Path,
				Section:    section.HeaderPath,
			})
		}
	}
	return docs, nil
}
