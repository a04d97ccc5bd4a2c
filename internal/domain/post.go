package domain

import (
	"time"

	"github.com/google/uuid"
)

// Post is the graph node for one board post. Created exactly once per SourceNo
// on first synchronization and never mutated afterwards (UpdatedAt excepted).
type Post struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceNo  int64     `gorm:"column:source_no;uniqueIndex;not null" json:"source_no"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

func NewPost(src *BoardPost) *Post {
	return &Post{
		ID:        uuid.New(),
		SourceNo:  src.No,
		Content:   src.Body,
		Timestamp: src.PostedAt,
	}
}
