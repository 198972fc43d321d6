// Package ingestion defines the request and response types for adding
// documents to the index and removing them.
package ingestion

import "github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/catalog"

// IndexRequest is the body of POST /api/v1/index. Exactly one of FilePath or
// the Key and Content pair must be set.
type IndexRequest struct {
	FilePath string `json:"filepath,omitempty"`
	Key      string `json:"key,omitempty"`
	Content  string `json:"content,omitempty"`
}

// IndexDirectoryRequest is the body of POST /api/v1/index-directory.
type IndexDirectoryRequest struct {
	DirPath string `json:"dirpath"`
}

// IndexResponse is returned after a single document is indexed.
type IndexResponse struct {
	Key    string `json:"key"`
	Length int    `json:"length"`
	Terms  int    `json:"terms"`
	Status string `json:"status"`
}

// IndexDirectoryResponse is returned after a directory is indexed.
type IndexDirectoryResponse struct {
	Directory string            `json:"directory"`
	Indexed   int               `json:"indexed"`
	Skipped   int               `json:"skipped"`
	Failed    map[string]string `json:"failed,omitempty"`
	Status    string            `json:"status"`
}

// RemoveResponse is returned after a document is removed.
type RemoveResponse struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// DocumentListResponse is returned by GET /api/v1/documents.
type DocumentListResponse struct {
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
	Documents []catalog.Record `json:"documents"`
}
