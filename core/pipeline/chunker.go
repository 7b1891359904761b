package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JasonAskew/knowledge/model"
)

var (
	definitionPattern     = regexp.MustCompile(`(?i)\bis (defined as|a|an)\b`)
	termDefinitionPattern = regexp.MustCompile(`(?m)^\s*[A-Z][A-Za-z /-]{2,40}:\s+\S`)
	examplePattern        = regexp.MustCompile(`(?i)\b(for example|e\.g\.|such as)\b`)
	alignedColumnsPattern = regexp.MustCompile(`\S+(?:\s{2,}\S+){2,}`)
)

const maxChunkKeywords = 10

// Chunker splits page text into token windows with overlap. Table
// blocks are kept whole and sentence boundaries are respected where
// possible. Chunks never cross page boundaries.
type Chunker struct {
	targetTokens  int
	overlapTokens int
	maxTokens     int
	boundaryScan  int
}

// NewChunker creates a chunker from the configured window sizes.
func NewChunker(config *model.Config) *Chunker {
	return &Chunker{
		targetTokens:  config.ChunkTargetTokens,
		overlapTokens: config.ChunkOverlapTokens,
		maxTokens:     config.ChunkMaxTokens,
		boundaryScan:  30,
	}
}

// ChunkPages produces the document's full chunk sequence. Chunk indexes
// are dense and ascend in page order, so the stored sequence doubles as
// the adjacency chain.
func (c *Chunker) ChunkPages(documentID string, pages []model.Page) []*model.Chunk {
	var chunks []*model.Chunk
	index := 0
	for _, page := range pages {
		for _, segment := range splitTableSegments(page.Text) {
			if segment.isTable {
				text := strings.TrimSpace(segment.text)
				if text == "" {
					continue
				}
				chunks = append(chunks, c.buildChunk(documentID, index, page.PageNum, text, model.ChunkTypeTable))
				index++
				continue
			}
			for _, text := range c.windowText(segment.text) {
				chunks = append(chunks, c.buildChunk(documentID, index, page.PageNum, text, ""))
				index++
			}
		}
	}
	return chunks
}

// windowText walks the segment's tokens emitting target-sized windows.
// Each next window starts overlap tokens before the previous boundary.
func (c *Chunker) windowText(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var windows []string
	start := 0
	for start < len(tokens) {
		end := start + c.targetTokens
		if end >= len(tokens) {
			end = len(tokens)
		} else {
			end = c.adjustBoundary(tokens, start, end)
		}

		windows = append(windows, text[tokens[start].Start:tokens[end-1].End])

		if end >= len(tokens) {
			break
		}
		next := end - c.overlapTokens
		if next <= start {
			next = end
		}
		start = next
	}
	return windows
}

// adjustBoundary moves a proposed split forward to the nearest sentence
// terminator when none falls within the boundary scan window, capped at
// the hard token maximum.
func (c *Chunker) adjustBoundary(tokens []Token, start, end int) int {
	scanFrom := end - c.boundaryScan
	if scanFrom < start {
		scanFrom = start
	}
	for i := end - 1; i >= scanFrom; i-- {
		if IsSentenceTerminal(tokens[i].Text) {
			return i + 1
		}
	}

	hardMax := start + c.maxTokens
	if hardMax > len(tokens) {
		hardMax = len(tokens)
	}
	for i := end; i < hardMax; i++ {
		if IsSentenceTerminal(tokens[i].Text) {
			return i + 1
		}
	}
	return hardMax
}

func (c *Chunker) buildChunk(documentID string, index, pageNum int, text string, chunkType model.ChunkType) *model.Chunk {
	tokens := Tokenize(text)
	hasDefinitions := definitionPattern.MatchString(text) || termDefinitionPattern.MatchString(text)
	hasExamples := examplePattern.MatchString(text)

	if chunkType == "" {
		switch {
		case hasDefinitions:
			chunkType = model.ChunkTypeDefinition
		case hasExamples:
			chunkType = model.ChunkTypeExample
		default:
			chunkType = model.ChunkTypeContent
		}
	}

	return &model.Chunk{
		ID:              model.ChunkID(documentID, index),
		DocumentID:      documentID,
		Text:            text,
		PageNum:         pageNum,
		ChunkIndex:      index,
		TokenCount:      len(tokens),
		ChunkType:       chunkType,
		SemanticDensity: semanticDensity(tokens),
		HasDefinitions:  hasDefinitions,
		HasExamples:     hasExamples,
		Keywords:        topKeywords(tokens, maxChunkKeywords),
	}
}

// semanticDensity is the ratio of distinct content tokens to all tokens.
func semanticDensity(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	distinct := make(map[string]bool)
	for _, token := range tokens {
		if IsContentToken(token.Text) {
			distinct[strings.ToLower(token.Text)] = true
		}
	}
	return float64(len(distinct)) / float64(len(tokens))
}

// topKeywords returns the most frequent content tokens, ties broken
// alphabetically for stable output.
func topKeywords(tokens []Token, limit int) []string {
	counts := make(map[string]int)
	for _, token := range tokens {
		if IsContentToken(token.Text) {
			counts[strings.ToLower(token.Text)]++
		}
	}

	keywords := make([]string, 0, len(counts))
	for keyword := range counts {
		keywords = append(keywords, keyword)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

type textSegment struct {
	text    string
	isTable bool
}

// splitTableSegments partitions page text into table blocks and plain
// text. A table block is three or more consecutive lines each carrying
// at least two pipes or three aligned whitespace columns.
func splitTableSegments(text string) []textSegment {
	lines := strings.Split(text, "\n")
	var segments []textSegment
	var current []string
	currentIsTable := false

	flush := func() {
		if len(current) > 0 {
			segments = append(segments, textSegment{
				text:    strings.Join(current, "\n"),
				isTable: currentIsTable,
			})
			current = nil
		}
	}

	i := 0
	for i < len(lines) {
		if isTableLine(lines[i]) {
			run := i
			for run < len(lines) && isTableLine(lines[run]) {
				run++
			}
			if run-i >= 3 {
				flush()
				currentIsTable = true
				current = lines[i:run]
				flush()
				currentIsTable = false
				i = run
				continue
			}
			// Short run, treat as plain text.
			current = append(current, lines[i:run]...)
			i = run
			continue
		}
		current = append(current, lines[i])
		i++
	}
	flush()
	return segments
}

func isTableLine(line string) bool {
	if strings.Count(line, "|") >= 2 {
		return true
	}
	return alignedColumnsPattern.MatchString(line)
}
