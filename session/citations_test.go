package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCitationsDedup(t *testing.T) {
	docs := []SourceDocument{
		{Path: "a/b/x.pdf"},
		{Name: "x.pdf"},
		{Path: "c/y.pdf"},
	}

	citations := Citations(docs)
	assert.Equal(t, []Citation{{DisplayName: "x.pdf"}, {DisplayName: "y.pdf"}}, citations)
	assert.Equal(t, "`x.pdf`, `y.pdf`", RenderCitations(citations))
}

func TestCitationsPathWinsAndEmptySkipped(t *testing.T) {
	docs := []SourceDocument{
		{},
		{Path: "drive/report.docx", Name: "ignored.docx"},
		{Name: "plain.txt"},
	}

	assert.Equal(t, []Citation{{DisplayName: "report.docx"}, {DisplayName: "plain.txt"}}, Citations(docs))
}

func TestExtractCitations(t *testing.T) {
	missing := ExtractCitations(Reply{Answer: "a"})
	assert.ErrorIs(t, missing.Err, ErrSourcesMissing)
	assert.Empty(t, missing.Citations)

	none := ExtractCitations(Reply{Answer: "a", SourcesKnown: true})
	assert.NoError(t, none.Err)
	assert.Empty(t, none.Citations)
}

func TestComposeAnswer(t *testing.T) {
	assert.Equal(t, "answer", ComposeAnswer("answer", nil))
	assert.Equal(t,
		"answer\n\nDocuments looked up to obtain this answer: `a.md`, `b.md`",
		ComposeAnswer("answer", []Citation{{DisplayName: "a.md"}, {DisplayName: "b.md"}}),
	)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("system").Valid())
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "x.pdf", LastSegment("a/b/x.pdf"))
	assert.Equal(t, "x.pdf", LastSegment("x.pdf"))
	assert.Equal(t, "", LastSegment("dir/"))
	assert.Equal(t, "", LastSegment(""))
}

func TestCitationsSkipTrailingSlash(t *testing.T) {
	citations := Citations([]SourceDocument{{Path: "drive/folder/"}, {Name: "z.md"}})
	assert.Equal(t, []Citation{{DisplayName: "z.md"}}, citations)
}
