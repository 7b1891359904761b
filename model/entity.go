package model

import "time"

// EntityType enumerates the entity classes the extractor emits.
type EntityType string

const (
	EntityTypeProduct EntityType = "PRODUCT"
	EntityTypeTerm    EntityType = "TERM"
	EntityTypeAmount  EntityType = "AMOUNT"
	EntityTypePercent EntityType = "PERCENT"
	EntityTypeOrg     EntityType = "ORG"
	EntityTypePerson  EntityType = "PERSON"
	EntityTypeOther   EntityType = "OTHER"
)

// Entity represents a normalized domain term or named entity node.
// (Normalized, Type) is unique across the store; entities persist across
// documents and accumulate occurrence counts.
type Entity struct {
	ID          int64      `json:"id"`
	Text        string     `json:"text"`
	Normalized  string     `json:"normalized"`
	Type        EntityType `json:"entity_type"`
	Occurrences int        `json:"occurrences"`
	FirstSeen   time.Time  `json:"first_seen"`
	// Community overlay, recomputed by the community builder
	CommunityID           *int64   `json:"community_id,omitempty"`
	DegreeCentrality      float64  `json:"degree_centrality"`
	BetweennessCentrality float64  `json:"betweenness_centrality"`
	IsBridge              bool     `json:"is_bridge"`
	ConnectedCommunities  int      `json:"connected_communities"`
	Metadata              Metadata `json:"metadata,omitempty"`
}

// ExtractedEntity is one extraction hit within a chunk, before graph upsert.
type ExtractedEntity struct {
	Surface    string     `json:"surface"`
	Normalized string     `json:"normalized"`
	Type       EntityType `json:"entity_type"`
	Confidence float64    `json:"confidence"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
}

// ChunkEntity is a CONTAINS_ENTITY edge from a chunk to an entity.
type ChunkEntity struct {
	ChunkID    string  `json:"chunk_id"`
	EntityID   int64   `json:"entity_id"`
	Confidence float64 `json:"confidence"`
}

// EntityRelation is an undirected RELATED_TO edge between two entities.
// Strength counts distinct chunks containing both; edges below strength 2
// are never materialized.
type EntityRelation struct {
	EntityA  int64 `json:"entity_a"`
	EntityB  int64 `json:"entity_b"`
	Strength int   `json:"strength"`
}

// Community is a cluster of entities produced by Louvain detection.
type Community struct {
	ID   int64 `json:"id"`
	Size int   `json:"size"`
}
