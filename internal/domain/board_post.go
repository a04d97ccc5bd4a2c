package domain

import "time"

// BoardPost is one row of the append-only source thread. The table is owned by
// the board ingest process; this service only ever reads it.
type BoardPost struct {
	No        int64     `gorm:"column:no;primaryKey" json:"no"`
	Author    string    `gorm:"column:author;type:text;not null" json:"author"`
	AuthorKey string    `gorm:"column:author_key;type:text;not null" json:"author_key"`
	PostedAt  time.Time `gorm:"column:posted_at;not null" json:"posted_at"`
	Body      string    `gorm:"column:body;type:text;not null" json:"body"`
}

func (BoardPost) TableName() string { return "board_post" }
