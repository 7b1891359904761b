package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

const exportVersion = "1.0"

// Export serializes the full graph into the portable JSON layout.
// Embeddings are wrapped as typed vectors so a restore can verify the
// dimension against the target store.
func (s *Store) Export(ctx context.Context) (*model.GraphExport, error) {
	export := &model.GraphExport{
		Metadata: model.ExportMetadata{
			ExportID:        uuid.New(),
			Version:         exportVersion,
			ExportTimestamp: time.Now().UTC(),
			SchemaRevision:  model.ExportSchemaRevision,
		},
		Statistics: make(map[string]interface{}),
	}

	docs, err := s.Documents.SelectAllDocuments()
	if err != nil {
		return nil, helper.NewError("export documents", err)
	}
	for _, doc := range docs {
		export.Nodes = append(export.Nodes, model.ExportNode{
			ID:     "doc:" + doc.ID,
			Labels: []string{"Document"},
			Properties: map[string]interface{}{
				"id":          doc.ID,
				"title":       doc.Title,
				"total_pages": doc.TotalPages,
				"chunk_count": doc.ChunkCount,
				"status":      string(doc.Status),
				"division":    doc.Division,
				"category":    doc.Category,
				"product":     doc.Product,
			},
		})

		chunks, err := s.Chunks.SelectChunksByDocument(doc.ID)
		if err != nil {
			return nil, helper.NewError("export chunks", err)
		}
		var prev *model.Chunk
		for _, chunk := range chunks {
			export.Nodes = append(export.Nodes, model.ExportNode{
				ID:     "chunk:" + chunk.ID,
				Labels: []string{"Chunk"},
				Properties: map[string]interface{}{
					"id":               chunk.ID,
					"text":             chunk.Text,
					"page_num":         chunk.PageNum,
					"chunk_index":      chunk.ChunkIndex,
					"token_count":      chunk.TokenCount,
					"chunk_type":       string(chunk.ChunkType),
					"semantic_density": chunk.SemanticDensity,
					"has_definitions":  chunk.HasDefinitions,
					"has_examples":     chunk.HasExamples,
					"keywords":         chunk.Keywords,
					"embedding":        model.NewExportVector(chunk.Embedding),
				},
			})
			export.Relationships = append(export.Relationships, model.ExportRelationship{
				ID:         fmt.Sprintf("has_chunk:%s", chunk.ID),
				Type:       "HAS_CHUNK",
				StartID:    "doc:" + doc.ID,
				EndID:      "chunk:" + chunk.ID,
				Properties: map[string]interface{}{},
			})
			if prev != nil {
				export.Relationships = append(export.Relationships, model.ExportRelationship{
					ID:         fmt.Sprintf("next_chunk:%s", prev.ID),
					Type:       "NEXT_CHUNK",
					StartID:    "chunk:" + prev.ID,
					EndID:      "chunk:" + chunk.ID,
					Properties: map[string]interface{}{},
				})
			}
			prev = chunk

			links, err := s.Relations.SelectChunkEntities(chunk.ID)
			if err != nil {
				return nil, helper.NewError("export chunk entities", err)
			}
			for _, link := range links {
				export.Relationships = append(export.Relationships, model.ExportRelationship{
					ID:      fmt.Sprintf("contains:%s:%d", link.ChunkID, link.EntityID),
					Type:    "CONTAINS_ENTITY",
					StartID: "chunk:" + link.ChunkID,
					EndID:   "entity:" + strconv.FormatInt(link.EntityID, 10),
					Properties: map[string]interface{}{
						"confidence": link.Confidence,
					},
				})
			}
		}
	}

	entities, err := s.Entities.SelectAllEntities()
	if err != nil {
		return nil, helper.NewError("export entities", err)
	}
	for _, entity := range entities {
		props := map[string]interface{}{
			"text":                   entity.Text,
			"normalized":             entity.Normalized,
			"entity_type":            string(entity.Type),
			"occurrences":            entity.Occurrences,
			"degree_centrality":      entity.DegreeCentrality,
			"betweenness_centrality": entity.BetweennessCentrality,
			"is_bridge":              entity.IsBridge,
			"connected_communities":  entity.ConnectedCommunities,
		}
		if entity.CommunityID != nil {
			props["community_id"] = *entity.CommunityID
		}
		export.Nodes = append(export.Nodes, model.ExportNode{
			ID:         "entity:" + strconv.FormatInt(entity.ID, 10),
			Labels:     []string{"Entity"},
			Properties: props,
		})
	}

	relations, err := s.Relations.SelectEntityRelations()
	if err != nil {
		return nil, helper.NewError("export entity relations", err)
	}
	for _, relation := range relations {
		export.Relationships = append(export.Relationships, model.ExportRelationship{
			ID:      fmt.Sprintf("related:%d:%d", relation.EntityA, relation.EntityB),
			Type:    "RELATED_TO",
			StartID: "entity:" + strconv.FormatInt(relation.EntityA, 10),
			EndID:   "entity:" + strconv.FormatInt(relation.EntityB, 10),
			Properties: map[string]interface{}{
				"strength": relation.Strength,
			},
		})
	}

	export.Statistics["documents"] = len(docs)
	export.Statistics["entities"] = len(entities)
	export.Statistics["relationships"] = len(export.Relationships)

	return export, nil
}

// Import restores an exported graph into the store. The target should be
// empty; node and relationship writes reuse the same upsert paths as
// ingestion so the restored graph answers queries identically.
func (s *Store) Import(ctx context.Context, export *model.GraphExport, embeddingDim int) error {
	if export.Metadata.SchemaRevision != model.ExportSchemaRevision {
		return helper.NewError("import", fmt.Errorf("schema revision %d not supported, want %d",
			export.Metadata.SchemaRevision, model.ExportSchemaRevision))
	}

	// Entity export IDs are store-generated; map them to the IDs the
	// target store assigns.
	entityIDs := make(map[string]int64)

	// Documents first, then chunks (FK order), then entities and links.
	for _, node := range export.Nodes {
		if len(node.Labels) == 0 || node.Labels[0] != "Document" {
			continue
		}
		doc := &model.Document{
			ID:         asString(node.Properties["id"]),
			Title:      asString(node.Properties["title"]),
			TotalPages: asInt(node.Properties["total_pages"]),
			Division:   asString(node.Properties["division"]),
			Category:   asString(node.Properties["category"]),
			Product:    asString(node.Properties["product"]),
		}
		if err := s.Documents.UpsertDocument(doc); err != nil {
			return helper.NewError("import document", err)
		}
		if err := s.Documents.UpdateDocumentStatus(doc.ID, model.DocumentStatus(asString(node.Properties["status"])), asInt(node.Properties["chunk_count"])); err != nil {
			return helper.NewError("import document status", err)
		}
	}

	for _, node := range export.Nodes {
		if len(node.Labels) == 0 || node.Labels[0] != "Chunk" {
			continue
		}
		embedding, err := asVector(node.Properties["embedding"], embeddingDim)
		if err != nil {
			return helper.NewError("import chunk embedding", err)
		}
		chunk := &model.Chunk{
			ID:              asString(node.Properties["id"]),
			Text:            asString(node.Properties["text"]),
			PageNum:         asInt(node.Properties["page_num"]),
			ChunkIndex:      asInt(node.Properties["chunk_index"]),
			TokenCount:      asInt(node.Properties["token_count"]),
			Embedding:       embedding,
			ChunkType:       model.ChunkType(asString(node.Properties["chunk_type"])),
			SemanticDensity: asFloat(node.Properties["semantic_density"]),
			HasDefinitions:  asBool(node.Properties["has_definitions"]),
			HasExamples:     asBool(node.Properties["has_examples"]),
			Keywords:        asStrings(node.Properties["keywords"]),
		}
		// HAS_CHUNK ownership is recovered from the chunk ID prefix in
		// the relationships list.
		for _, rel := range export.Relationships {
			if rel.Type == "HAS_CHUNK" && rel.EndID == node.ID {
				chunk.DocumentID = asString(rel.StartID[len("doc:"):])
				break
			}
		}
		if chunk.DocumentID == "" {
			return helper.NewError("import chunk", fmt.Errorf("chunk %s has no HAS_CHUNK owner", chunk.ID))
		}
		if err := s.Chunks.InsertChunk(chunk); err != nil {
			return helper.NewError("import chunk", err)
		}
	}

	for _, node := range export.Nodes {
		if len(node.Labels) == 0 || node.Labels[0] != "Entity" {
			continue
		}
		entity := &model.Entity{
			Text:       asString(node.Properties["text"]),
			Normalized: asString(node.Properties["normalized"]),
			Type:       model.EntityType(asString(node.Properties["entity_type"])),
		}
		if err := s.Entities.UpsertEntity(entity); err != nil {
			return helper.NewError("import entity", err)
		}
		// Upsert counts one occurrence; restore the exported count and
		// community metadata directly.
		occurrences := asInt(node.Properties["occurrences"])
		if occurrences > 1 {
			if _, err := s.DB.Instance.ExecContext(ctx,
				`UPDATE entities SET occurrences = $1 WHERE id = $2`,
				occurrences, entity.ID,
			); err != nil {
				return helper.NewError("import entity occurrences", err)
			}
		}
		if cid, ok := node.Properties["community_id"]; ok {
			community := int64(asInt(cid))
			entity.CommunityID = &community
		}
		entity.DegreeCentrality = asFloat(node.Properties["degree_centrality"])
		entity.BetweennessCentrality = asFloat(node.Properties["betweenness_centrality"])
		entity.IsBridge = asBool(node.Properties["is_bridge"])
		entity.ConnectedCommunities = asInt(node.Properties["connected_communities"])
		if err := s.Entities.UpdateEntityCommunity(entity); err != nil {
			return helper.NewError("import entity community", err)
		}
		entityIDs[node.ID] = entity.ID
	}

	for _, rel := range export.Relationships {
		switch rel.Type {
		case "CONTAINS_ENTITY":
			entityID, ok := entityIDs[rel.EndID]
			if !ok {
				return helper.NewError("import contains edge", fmt.Errorf("unknown entity %s", rel.EndID))
			}
			chunkID := rel.StartID[len("chunk:"):]
			if err := s.Relations.LinkContainsEntity(chunkID, entityID, asFloat(rel.Properties["confidence"])); err != nil {
				return helper.NewError("import contains edge", err)
			}
		case "RELATED_TO":
			a, aok := entityIDs[rel.StartID]
			b, bok := entityIDs[rel.EndID]
			if !aok || !bok {
				return helper.NewError("import related edge", fmt.Errorf("unknown entity pair %s %s", rel.StartID, rel.EndID))
			}
			if a > b {
				a, b = b, a
			}
			if _, err := s.DB.Instance.ExecContext(ctx,
				`INSERT INTO entity_relations (entity_a, entity_b, strength) VALUES ($1, $2, $3)
				 ON CONFLICT (entity_a, entity_b) DO UPDATE SET strength = EXCLUDED.strength`,
				a, b, asInt(rel.Properties["strength"]),
			); err != nil {
				return helper.NewError("import related edge", err)
			}
		}
	}

	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asStrings(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, asString(item))
		}
		return out
	}
	return nil
}

// asVector decodes an exported embedding, from either the in-memory
// ExportVector or its JSON map form, and checks the dimension.
func asVector(v interface{}, dim int) ([]float32, error) {
	switch vec := v.(type) {
	case model.ExportVector:
		if vec.Dimension != dim {
			return nil, fmt.Errorf("embedding dimension %d, store expects %d", vec.Dimension, dim)
		}
		return vec.Values, nil
	case map[string]interface{}:
		values, ok := vec["values"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("malformed vector values")
		}
		if len(values) != dim {
			return nil, fmt.Errorf("embedding dimension %d, store expects %d", len(values), dim)
		}
		out := make([]float32, len(values))
		for i, item := range values {
			f, ok := item.(float64)
			if !ok {
				return nil, fmt.Errorf("malformed vector value at %d", i)
			}
			out[i] = float32(f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("missing embedding")
}
