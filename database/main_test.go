package database

import (
	"context"
	"log"
	"math"
	"testing"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
	loadSql "github.com/JasonAskew/knowledge/sql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

func initDB(t *testing.T) *helper.Database {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	db := helper.NewTestDatabase(dbConfig)

	err = loadSql.Init(db.Instance)
	require.NoError(t, err)

	return db
}

func initStore(t *testing.T) *Store {
	db := initDB(t)

	store, err := NewStore(db, 384, true)
	require.NoError(t, err, "failed to create store")

	return store
}

// testEmbedding produces a deterministic unit vector per seed.
func testEmbedding(seed int) []float32 {
	embedding := make([]float32, 384)
	var sum float64
	for i := range embedding {
		v := float32((seed*31+i)%17) + 1
		embedding[i] = v
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range embedding {
		embedding[i] /= norm
	}
	return embedding
}

func testDocument(id string, pages int) *model.Document {
	doc := model.NewDocument(id)
	doc.TotalPages = pages
	return doc
}

func testChunk(documentID string, index, page int, text string, seed int) *model.Chunk {
	return &model.Chunk{
		ID:              model.ChunkID(documentID, index),
		DocumentID:      documentID,
		Text:            text,
		PageNum:         page,
		ChunkIndex:      index,
		TokenCount:      len(text) / 5,
		Embedding:       testEmbedding(seed),
		ChunkType:       model.ChunkTypeContent,
		SemanticDensity: 0.5,
		Keywords:        []string{"test"},
	}
}
