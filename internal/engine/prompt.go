package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// chunkSeparator joins retrieved chunks in the assembled context block.
const chunkSeparator = "\n\n---\n\n"

// promptReserve is the share of the context window kept free for the
// question, the prompt template and the model's answer.
const promptReserve = 0.25

// tokenCounter measures text against a model's context budget.
//
// cl100k_base is close enough for budgeting across the supported backends;
// the goal is staying under the window, not exact accounting. When the
// encoding is unavailable (tiktoken fetches BPE data on first use) it falls
// back to the ~4 chars/token heuristic.
type tokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &tokenCounter{}
	}
	return &tokenCounter{encoding: enc}
}

func (t *tokenCounter) count(text string) int {
	if t.encoding != nil {
		return len(t.encoding.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Source attributes one retrieved chunk in the response.
type Source struct {
	// Source is the originating document (path or table:id).
	Source string `json:"source"`
	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int `json:"chunk_index"`
	// Score is the similarity score of the hit.
	Score float32 `json:"score"`
}

// assembled is the outcome of context assembly.
type assembled struct {
	// contextBlock is the joined chunk text, empty when nothing fit.
	contextBlock string
	// sources attributes the chunks that made it into the block.
	sources []Source
	// truncated reports whether any hits were dropped for budget.
	truncated bool
}

// assembleContext joins hits into a context block within the token budget.
// Hits arrive ordered by descending score; when the block would exceed the
// budget, the lowest-scoring hits are dropped first. At least the top hit is
// always included, truncation never produces partial chunks.
func assembleContext(hits []vectorstore.ScoredEntry, contextWindow int, counter *tokenCounter) assembled {
	if len(hits) == 0 {
		return assembled{sources: []Source{}}
	}

	budget := contextWindow - int(float64(contextWindow)*promptReserve)

	kept := hits
	truncated := false
	for len(kept) > 1 {
		total := 0
		for _, hit := range kept {
			total += counter.count(hit.Payload.Text)
		}
		total += counter.count(chunkSeparator) * (len(kept) - 1)
		if total <= budget {
			break
		}
		kept = kept[:len(kept)-1]
		truncated = true
	}

	texts := make([]string, len(kept))
	sources := make([]Source, len(kept))
	for i, hit := range kept {
		texts[i] = hit.Payload.Text
		sources[i] = Source{
			Source:     hit.Payload.Source,
			ChunkIndex: hit.Payload.ChunkIndex,
			Score:      hit.Score,
		}
	}

	return assembled{
		contextBlock: strings.Join(texts, chunkSeparator),
		sources:      sources,
		truncated:    truncated,
	}
}
