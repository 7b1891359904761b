package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/JasonAskew/knowledge"
	"github.com/JasonAskew/knowledge/core/ingest"
	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// Ingests every PDF in a directory, then rebuilds the entity
// communities. Usage: ingest <pdf-dir>
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: ingest <pdf-dir>")
	}
	pdfDir := os.Args[1]

	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Name:     "database",
		User:     "user",
		Password: "password",
		Schema:   "public",
	}

	k, err := knowledge.New(dbConfig, model.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer k.Close()

	ctx := context.Background()

	var inputs []ingest.Input
	entries, err := os.ReadDir(pdfDir)
	if err != nil {
		log.Fatalf("Failed to read directory: %v", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(pdfDir, entry.Name()))
		if err != nil {
			log.Fatalf("Failed to read %s: %v", entry.Name(), err)
		}
		inputs = append(inputs, ingest.Input{Filename: entry.Name(), Data: data})
	}
	if len(inputs) == 0 {
		log.Fatalf("No PDFs found in %s", pdfDir)
	}

	fmt.Printf("Ingesting %d documents...\n", len(inputs))
	results, err := k.IngestAll(ctx, inputs)
	if err != nil {
		log.Fatalf("Failed to ingest: %v", err)
	}

	for _, result := range results {
		if result.Status == model.DocumentStatusFailed {
			fmt.Printf("FAILED %s: %s\n", result.DocumentID, result.Errors[0].Message)
			continue
		}
		fmt.Printf("OK %s: %d chunks, %d entities\n", result.DocumentID, result.ChunkCount, result.EntityCount)
	}

	fmt.Println("\nRebuilding communities...")
	communities, err := k.RebuildCommunities(ctx, true)
	if err != nil {
		log.Fatalf("Failed to rebuild communities: %v", err)
	}
	fmt.Printf("Detected %d communities over %d entities\n", communities.Communities, communities.Entities)

	summary, err := k.Schema(ctx)
	if err != nil {
		log.Fatalf("Failed to summarize schema: %v", err)
	}
	fmt.Printf("\nGraph: %d documents, %d chunks, %d entities\n",
		summary.NodeCounts["Document"], summary.NodeCounts["Chunk"], summary.NodeCounts["Entity"])
}
