package entity

import "time"

// Document represents one uploaded file and where its bytes are stored.
type Document struct {
	ID        int       `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"date"`
}
