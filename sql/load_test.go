package sql

import (
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	db := initDB(t)

	t.Run("Initialize database extensions", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		// Verify pgvector extension is created
		var exists bool
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "pgvector extension should be created")

		// Verify pg_trgm extension is created
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'pg_trgm');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "pg_trgm extension should be created")
	})

	t.Run("Initialize database extensions is idempotent", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		err = Init(db.Instance)
		assert.NoError(t, err)
	})
}

func TestLoadFunctions(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	err := Init(db.Instance)
	require.NoError(t, err)

	loaders := []struct {
		name      string
		load      func() error
		functions []string
	}{
		{"documents", func() error { return LoadDocumentsSql(db.Instance, false) }, DocumentsFunctions},
		{"chunks", func() error { return LoadChunksSql(db.Instance, false) }, ChunksFunctions},
		{"entities", func() error { return LoadEntitiesSql(db.Instance, false) }, EntitiesFunctions},
		{"relations", func() error { return LoadRelationsSql(db.Instance, false) }, RelationsFunctions},
	}

	for _, loader := range loaders {
		t.Run("Load "+loader.name+" SQL functions", func(t *testing.T) {
			err := loader.load()
			assert.NoError(t, err)

			for _, funcName := range loader.functions {
				var exists bool
				err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
				require.NoError(t, err)
				assert.True(t, exists, "Function %s should exist", funcName)
			}
		})
	}

	t.Run("Loading is idempotent without force", func(t *testing.T) {
		err := LoadChunksSql(db.Instance, false)
		assert.NoError(t, err)

		err = LoadChunksSql(db.Instance, true)
		assert.NoError(t, err)
	})
}
