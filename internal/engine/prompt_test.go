package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// heuristicCounter forces the chars/4 fallback for deterministic budgets.
func heuristicCounter() *tokenCounter {
	return &tokenCounter{}
}

func hit(text string, score float32) vectorstore.ScoredEntry {
	return vectorstore.ScoredEntry{
		Entry: vectorstore.Entry{
			Payload: vectorstore.Payload{Text: text, Source: "doc.txt", ChunkIndex: 0},
		},
		Score: score,
	}
}

func TestAssembleContext(t *testing.T) {
	counter := heuristicCounter()

	t.Run("no hits yields empty context", func(t *testing.T) {
		asm := assembleContext(nil, 8192, counter)
		assert.Empty(t, asm.contextBlock)
		assert.Empty(t, asm.sources)
		assert.False(t, asm.truncated)
	})

	t.Run("all hits fit within budget", func(t *testing.T) {
		hits := []vectorstore.ScoredEntry{
			hit("first chunk", 0.9),
			hit("second chunk", 0.8),
			hit("third chunk", 0.7),
		}
		asm := assembleContext(hits, 8192, counter)

		assert.False(t, asm.truncated)
		require.Len(t, asm.sources, 3)
		assert.Contains(t, asm.contextBlock, "first chunk")
		assert.Contains(t, asm.contextBlock, "third chunk")
		assert.Equal(t, float32(0.9), asm.sources[0].Score)
	})

	t.Run("lowest scoring hits are dropped first", func(t *testing.T) {
		big := strings.Repeat("w", 400) // ~100 tokens each
		hits := []vectorstore.ScoredEntry{
			hit(big+"A", 0.9),
			hit(big+"B", 0.8),
			hit(big+"C", 0.7),
		}
		// window 200 -> budget 150 tokens, fits one ~100-token chunk.
		asm := assembleContext(hits, 200, counter)

		assert.True(t, asm.truncated)
		require.Len(t, asm.sources, 1)
		assert.Contains(t, asm.contextBlock, "A")
		assert.NotContains(t, asm.contextBlock, "B")
		assert.NotContains(t, asm.contextBlock, "C")
	})

	t.Run("top hit is always kept even over budget", func(t *testing.T) {
		huge := strings.Repeat("w", 10000)
		asm := assembleContext([]vectorstore.ScoredEntry{hit(huge, 0.9)}, 100, counter)

		require.Len(t, asm.sources, 1)
		assert.Equal(t, huge, asm.contextBlock)
		assert.False(t, asm.truncated)
	})

	t.Run("chunks join with separator", func(t *testing.T) {
		hits := []vectorstore.ScoredEntry{hit("one", 0.9), hit("two", 0.8)}
		asm := assembleContext(hits, 8192, counter)
		assert.Equal(t, "one"+chunkSeparator+"two", asm.contextBlock)
	})

	t.Run("sources carry attribution", func(t *testing.T) {
		entry := vectorstore.ScoredEntry{
			Entry: vectorstore.Entry{
				Payload: vectorstore.Payload{Text: "t", Source: "faq:7", ChunkIndex: 3},
			},
			Score: 0.42,
		}
		asm := assembleContext([]vectorstore.ScoredEntry{entry}, 8192, counter)
		require.Len(t, asm.sources, 1)
		assert.Equal(t, "faq:7", asm.sources[0].Source)
		assert.Equal(t, 3, asm.sources[0].ChunkIndex)
		assert.Equal(t, float32(0.42), asm.sources[0].Score)
	})
}

func TestTokenCounterFallback(t *testing.T) {
	counter := heuristicCounter()
	assert.Equal(t, 1, counter.count("abc"))
	assert.Equal(t, 1, counter.count("abcd"))
	assert.Equal(t, 2, counter.count("abcde"))
	assert.Equal(t, 0, counter.count(""))
}
