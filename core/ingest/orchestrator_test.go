package ingest

import (
	"testing"

	"github.com/JasonAskew/knowledge/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeChunks(t *testing.T) {
	chunk := func(index int, text string) *model.Chunk {
		return &model.Chunk{
			ID:         model.ChunkID("doc.pdf", index),
			DocumentID: "doc.pdf",
			ChunkIndex: index,
			Text:       text,
		}
	}

	t.Run("Removes repeated text keeping first occurrence", func(t *testing.T) {
		chunks, removed := dedupeChunks([]*model.Chunk{
			chunk(0, "This product has a minimum deposit."),
			chunk(1, "Repeated boilerplate footer."),
			chunk(2, "Repeated boilerplate footer."),
			chunk(3, "Fees apply on early withdrawal."),
		})

		assert.Equal(t, 1, removed, "Expected one duplicate removed")
		require.Len(t, chunks, 3, "Expected three unique chunks")
		assert.Equal(t, "Repeated boilerplate footer.", chunks[1].Text, "Expected the first occurrence to survive")
		assert.Equal(t, "Fees apply on early withdrawal.", chunks[2].Text, "Expected order preserved")
	})

	t.Run("Survivors are reindexed densely", func(t *testing.T) {
		chunks, _ := dedupeChunks([]*model.Chunk{
			chunk(0, "Unique opening."),
			chunk(1, "Duplicated middle."),
			chunk(2, "Duplicated middle."),
			chunk(3, "Unique closing."),
		})

		require.Len(t, chunks, 3, "Expected three unique chunks")
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex, "Expected a dense index sequence with no gaps")
			assert.Equal(t, model.ChunkID("doc.pdf", i), c.ID, "Expected chunk IDs to match the dense indices")
		}
	})

	t.Run("Unique chunks pass through untouched", func(t *testing.T) {
		input := []*model.Chunk{
			chunk(0, "First."),
			chunk(1, "Second."),
		}

		chunks, removed := dedupeChunks(input)

		assert.Equal(t, 0, removed, "Expected no duplicates")
		assert.Len(t, chunks, 2, "Expected both chunks kept")
	})

	t.Run("Empty input yields empty output", func(t *testing.T) {
		chunks, removed := dedupeChunks(nil)

		assert.Empty(t, chunks, "Expected no chunks")
		assert.Equal(t, 0, removed, "Expected no duplicates")
	})
}

func TestStats(t *testing.T) {
	t.Run("Counters start at zero and accumulate", func(t *testing.T) {
		o := &Orchestrator{}

		assert.Equal(t, Stats{}, o.Stats(), "Expected fresh counters to be zero")

		o.documentsProcessed.Add(2)
		o.chunksWritten.Add(10)
		o.duplicatesRemoved.Add(1)

		stats := o.Stats()
		assert.Equal(t, int64(2), stats.DocumentsProcessed)
		assert.Equal(t, int64(10), stats.ChunksWritten)
		assert.Equal(t, int64(1), stats.DuplicatesRemoved)
		assert.Equal(t, int64(0), stats.DocumentsFailed)
	})
}
