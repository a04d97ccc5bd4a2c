package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Relationship types. REPLY_TO edges are proposed by the oracle; SEQUENTIAL_TO
// edges are computed deterministically from post proximity.
const (
	RelationReplyTo      = "REPLY_TO"
	RelationSequentialTo = "SEQUENTIAL_TO"
)

// DefaultReplyConfidence is attached to oracle-proposed edges when the oracle
// does not supply its own score.
const DefaultReplyConfidence = 0.8

// Relationship is a directed, typed edge between two graph posts. The composite
// unique index makes edge insertion idempotent: the same (source, target, type)
// triple can never be stored twice.
type Relationship struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceNodeID uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_relationships_src_tgt_type" json:"source_node_id"`
	TargetNodeID uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_relationships_src_tgt_type" json:"target_node_id"`
	Type         string         `gorm:"column:type;size:50;not null;index;uniqueIndex:idx_relationships_src_tgt_type" json:"type"`
	Properties   datatypes.JSON `gorm:"type:jsonb" json:"properties"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
}

func (Relationship) TableName() string { return "relationships" }

func NewRelationship(sourceID, targetID uuid.UUID, relType string, props map[string]any) *Relationship {
	raw, _ := json.Marshal(props)
	return &Relationship{
		ID:           uuid.New(),
		SourceNodeID: sourceID,
		TargetNodeID: targetID,
		Type:         relType,
		Properties:   datatypes.JSON(raw),
	}
}
