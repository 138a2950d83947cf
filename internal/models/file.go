// Package models defines the shared domain types for Iceberg.
package models

import "time"

// FileMeta is a lightweight description of a file under a storage root.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is an outline document known to the catalog.
type Document struct {
	Path         string    `json:"path"`
	Checksum     string    `json:"checksum"`
	HeadingCount int       `json:"heading_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Reference is a directed edge from a document to an attachment key it embeds.
type Reference struct {
	Document string `json:"document"`
	Key      string `json:"key"`
	Kind     string `json:"kind"`
}
