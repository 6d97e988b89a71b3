package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDocument_BasicHeaders(t *testing.T) {
	input := `# Leave Policy

All employees are entitled to leave.

## Annual Leave

Twenty days per year.

## Sick Leave

Ten days per year.
`

	sections, err := NewChunker().ChunkDocument([]byte(input))
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, 0, sections[0].Index)
	assert.Equal(t, "# Leave Policy", sections[0].HeaderPath)
	assert.Equal(t, "# Leave Policy\n\nAll employees are entitled to leave.", sections[0].RawContent)
	assert.NotContains(t, sections[0].RawContent, "Twenty days", "sections must not overlap")

	assert.Equal(t, 1, sections[1].Index)
	assert.Equal(t, "# Leave Policy > ## Annual Leave", sections[1].HeaderPath)
	assert.Equal(t, "## Annual Leave\n\nTwenty days per year.", sections[1].RawContent)

	assert.Equal(t, "# Leave Policy > ## Sick Leave", sections[2].HeaderPath)
	assert.Equal(t, "## Sick Leave\n\nTen days per year.", sections[2].RawContent)
}

func TestChunkDocument_NestedContent(t *testing.T) {
	input := `# Benefits

Overview of benefits.

## Medical

Covered items:

` + "```text" + `
# not a heading inside a code block
` + "```" + `

### Dental

Some details here.

- List item 1
- List item 2
`

	sections, err := NewChunker().ChunkDocument([]byte(input))
	require.NoError(t, err)

	// H3 is not a split boundary.
	require.Len(t, sections, 2)
	medical := sections[1].RawContent
	assert.Contains(t, medical, "# not a heading inside a code block")
	assert.Contains(t, medical, "### Dental")
	assert.Contains(t, medical, "List item 1")
}

func TestChunkDocument_MultipleTopLevel(t *testing.T) {
	input := `# Leave

Leave text.

## Maternity

Maternity text.

# Salary

Salary text.

## Bonus

Bonus text.
`

	sections, err := NewChunker().ChunkDocument([]byte(input))
	require.NoError(t, err)

	var paths []string
	for _, s := range sections {
		paths = append(paths, s.HeaderPath)
	}
	assert.Equal(t, []string{
		"# Leave",
		"# Leave > ## Maternity",
		"# Salary",
		"# Salary > ## Bonus",
	}, paths)
	assert.Equal(t, "## Maternity\n\nMaternity text.", sections[1].RawContent)
}

func TestChunkDocument_Preamble(t *testing.T) {
	input := `Effective from January 2024.

# Travel

Economy class only.
`

	sections, err := NewChunker().ChunkDocument([]byte(input))
	require.NoError(t, err)
	require.Len(t, sections, 2)

	assert.Equal(t, "", sections[0].HeaderPath)
	assert.Equal(t, "Effective from January 2024.", sections[0].Content)
	assert.Equal(t, "# Travel", sections[1].HeaderPath)
}

func TestChunkDocument_SingleSection(t *testing.T) {
	input := `This is a document with no headers.

Just plain text content.
`

	sections, err := NewChunker().ChunkDocument([]byte(input))
	require.NoError(t, err)
	require.Len(t, sections, 1)

	assert.Equal(t, "", sections[0].HeaderPath)
	assert.True(t, strings.HasPrefix(sections[0].Content, "This is a document"))
	assert.Equal(t, sections[0].RawContent, sections[0].Content)
}

func TestChunkDocument_Empty(t *testing.T) {
	sections, err := NewChunker().ChunkDocument([]byte("  \n\n "))
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestChunkDocument_PrependedContent(t *testing.T) {
	input := `# Title

Some content.

## Section

Section content.
`

	sections, err := NewChunker().ChunkDocument([]byte(input))
	require.NoError(t, err)
	require.Len(t, sections, 2)

	assert.True(t, strings.HasPrefix(sections[1].Content, "# Title > ## Section\n\n"))
	assert.True(t, strings.HasSuffix(sections[1].Content, "Section content."))
}

func TestFormatHeaderPath(t *testing.T) {
	assert.Equal(t, "# Leave > ## Maternity", formatHeaderPath([]string{"Leave", "Maternity"}, 2))
	assert.Equal(t, "# Leave", formatHeaderPath([]string{"Leave"}, 1))
	assert.Equal(t, "## Orphan", formatHeaderPath([]string{"Orphan"}, 2))
}
