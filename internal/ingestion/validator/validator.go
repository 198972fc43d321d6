// Package validator checks index requests before they reach the engine and
// reports problems per field.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/ingestion"
)

const (
	maxKeyLength     = 255
	maxContentLength = 10 << 20
	maxPathLength    = 4096
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIndexRequest requires either a file path or a key with content,
// never both.
func ValidateIndexRequest(req *ingestion.IndexRequest) error {
	errs := make(map[string]string)

	hasPath := strings.TrimSpace(req.FilePath) != ""
	hasInline := req.Key != "" || req.Content != ""
	switch {
	case hasPath && hasInline:
		errs["filepath"] = "filepath cannot be combined with key and content"
	case hasPath:
		if len(req.FilePath) > maxPathLength {
			errs["filepath"] = fmt.Sprintf("filepath must be at most %d characters", maxPathLength)
		}
	case hasInline:
		key := strings.TrimSpace(req.Key)
		if key == "" {
			errs["key"] = "key is required with content"
		} else if len(key) > maxKeyLength {
			errs["key"] = fmt.Sprintf("key must be at most %d characters", maxKeyLength)
		} else if strings.ContainsAny(key, "/\\") {
			errs["key"] = "key must not contain path separators"
		}
		if len(req.Content) > maxContentLength {
			errs["content"] = fmt.Sprintf("content must be at most %d bytes", maxContentLength)
		}
	default:
		errs["filepath"] = "either filepath or key and content is required"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func ValidateIndexDirectoryRequest(req *ingestion.IndexDirectoryRequest) error {
	errs := make(map[string]string)
	dir := strings.TrimSpace(req.DirPath)
	if dir == "" {
		errs["dirpath"] = "dirpath is required"
	} else if len(dir) > maxPathLength {
		errs["dirpath"] = fmt.Sprintf("dirpath must be at most %d characters", maxPathLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateKey checks a document key taken from a URL path.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return &ValidationError{Fields: map[string]string{"key": "key is required"}}
	}
	if len(key) > maxKeyLength {
		return &ValidationError{Fields: map[string]string{"key": fmt.Sprintf("key must be at most %d characters", maxKeyLength)}}
	}
	return nil
}
