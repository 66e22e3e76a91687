package service

import (
	"fmt"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// ContextSource is a single chunk eligible for inclusion in a built context,
// already post-rerank and post-filter.
type ContextSource struct {
	Chunk        model.Chunk
	DocumentID   string
	DocumentName string
	Score        float64
}

// ContextCitation is one label -> source mapping recorded in the FUENTES
// section and returned to the caller for citation-index validation.
type ContextCitation struct {
	Label      string
	DocumentID string
	ChunkID    string
	ChunkIndex int
}

// BuiltContext is the assembled prompt-safe context plus the ordered subset
// of sources that made it in under budget.
type BuiltContext struct {
	Text      string
	Included  []ContextSource
	Citations []ContextCitation
	Empty     bool
}

// ContextBuilderService assembles a cited, delimited, budget-bounded context
// block from ranked chunks as a reusable, testable component with stable
// [S1]-style labels instead of inline 1-based indices.
type ContextBuilderService struct {
	charBudget int
}

func NewContextBuilderService(charBudget int) *ContextBuilderService {
	if charBudget <= 0 {
		charBudget = 8000
	}
	return &ContextBuilderService{charBudget: charBudget}
}

const chunkDelimiterOpen = "<<<SOURCE_START>>>"
const chunkDelimiterClose = "<<<SOURCE_END>>>"

// Build greedily includes sources in input order. The first source is always
// included; a later source whose block would exceed the character budget is
// skipped and the following sources are still tried. Labels follow input
// position ([S1] is sources[0]), so skipped sources leave gaps in the labels.
// Order is the caller's responsibility (post-rerank, post-filter); Build
// never reorders.
func (s *ContextBuilderService) Build(sources []ContextSource) BuiltContext {
	if len(sources) == 0 {
		return BuiltContext{Empty: true}
	}

	var body strings.Builder
	var citations []ContextCitation
	var included []ContextSource

	for i, src := range sources {
		label := fmt.Sprintf("[S%d]", i+1)
		block := formatSourceBlock(label, src)

		if body.Len() > 0 && body.Len()+len(block) > s.charBudget {
			continue
		}

		body.WriteString(block)
		included = append(included, src)
		citations = append(citations, ContextCitation{
			Label:      label,
			DocumentID: src.DocumentID,
			ChunkID:    src.Chunk.ID,
			ChunkIndex: src.Chunk.ChunkIndex,
		})
	}

	if len(included) == 0 {
		return BuiltContext{Empty: true}
	}

	body.WriteString("\nFUENTES\n")
	for _, c := range citations {
		body.WriteString(fmt.Sprintf("%s -> document_id=%s, chunk_id=%s\n", c.Label, c.DocumentID, c.ChunkID))
	}

	return BuiltContext{
		Text:      body.String(),
		Included:  included,
		Citations: citations,
	}
}

func formatSourceBlock(label string, src ContextSource) string {
	return fmt.Sprintf("%s %s (document: %s, document_id=%s, chunk=%d)\n%s\n%s\n\n",
		chunkDelimiterOpen, label, src.DocumentName, src.DocumentID, src.Chunk.ChunkIndex, src.Chunk.Content, chunkDelimiterClose)
}
