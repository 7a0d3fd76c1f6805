// Package docstore defines the document-store operations docsync consumes
// and an HTTP client for Elasticsearch-compatible stores.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Client is the document-store RPC surface. Index arguments accept either a
// physical index or an alias resolving to exactly one physical index.
type Client interface {
	Get(ctx context.Context, index, docType, id string) (*Hit, error)
	Index(ctx context.Context, index, docType, id string, doc map[string]any) error
	Delete(ctx context.Context, index, docType, id string) error
	Search(ctx context.Context, index string, docTypes []string, query map[string]any) (*SearchResult, error)
	Bulk(ctx context.Context, index string, items []BulkItem) (*BulkResult, error)

	CreateIndex(ctx context.Context, name string, body map[string]any) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	CloseIndex(ctx context.Context, name string) error
	OpenIndex(ctx context.Context, name string) error
	Refresh(ctx context.Context, name string) error

	// GetSettings returns the "settings" object of a physical index.
	GetSettings(ctx context.Context, name string) (map[string]any, error)
	PutSettings(ctx context.Context, name string, settings map[string]any) error
	// GetMapping returns the live mapping of one document type, or nil when
	// the type has none.
	GetMapping(ctx context.Context, name, docType string) (map[string]any, error)
	PutMapping(ctx context.Context, name, docType string, body map[string]any) error

	// GetAlias returns the physical indexes the alias points at. A missing
	// alias is ErrNotFound.
	GetAlias(ctx context.Context, alias string) ([]string, error)
	AliasExists(ctx context.Context, alias string) (bool, error)
	// UpdateAliases applies all actions in one atomic request.
	UpdateAliases(ctx context.Context, actions []AliasAction) error

	Close() error
}

// Hit is one stored document.
type Hit struct {
	Index   string         `json:"_index"`
	Type    string         `json:"_type"`
	ID      string         `json:"_id"`
	Version int64          `json:"_version,omitempty"`
	Found   bool           `json:"found,omitempty"`
	Source  map[string]any `json:"_source"`
}

// SearchResult is the decoded hits of a search.
type SearchResult struct {
	Total int64
	Hits  []Hit
}

// Bulk actions.
const (
	ActionIndex  = "index"
	ActionDelete = "delete"
)

// BulkItem is one action of a bulk request.
type BulkItem struct {
	Action string
	Type   string
	ID     string
	Doc    map[string]any
}

// BulkItemResult is the outcome of one bulk action.
type BulkItemResult struct {
	Action string
	ID     string
	Status int
	Err    *Error
}

// BulkResult reports per-item outcomes of a bulk request.
type BulkResult struct {
	Items []BulkItemResult
}

// Failed returns the items that did not succeed.
func (r *BulkResult) Failed() []BulkItemResult {
	var out []BulkItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// AliasAction adds or removes one alias. Exactly one of Add and Remove is
// set.
type AliasAction struct {
	Add    *AliasRef `json:"add,omitempty"`
	Remove *AliasRef `json:"remove,omitempty"`
}

// AliasRef names an index/alias pair.
type AliasRef struct {
	Index string `json:"index"`
	Alias string `json:"alias"`
}

// AddAlias returns an action pointing alias at index.
func AddAlias(index, alias string) AliasAction {
	return AliasAction{Add: &AliasRef{Index: index, Alias: alias}}
}

// RemoveAlias returns an action removing alias from index.
func RemoveAlias(index, alias string) AliasAction {
	return AliasAction{Remove: &AliasRef{Index: index, Alias: alias}}
}

// ErrNotFound matches any *Error with status 404.
var ErrNotFound = errors.New("docstore: not found")

// Error types reported by the store.
const (
	TypeMergeMapping    = "merge_mapping_exception"
	TypeIllegalArg      = "illegal_argument_exception"
	TypeIndexNotFound   = "index_not_found_exception"
	TypeIndexExists     = "index_already_exists_exception"
	TypeIndexClosed     = "index_closed_exception"
	TypeStrictMapping   = "strict_dynamic_mapping_exception"
	TypeMapperParsing   = "mapper_parsing_exception"
	TypeDocumentMissing = "document_missing_exception"
)

// Error is a failure reported by the document store.
type Error struct {
	Status int
	Type   string
	Reason string
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("docstore: %d %s: %s", e.Status, e.Type, e.Reason)
	}
	return fmt.Sprintf("docstore: %d: %s", e.Status, e.Reason)
}

// Is reports 404 errors as ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// IsMergeConflict reports whether err is a mapping update rejected because
// it cannot be merged into the live mapping.
func IsMergeConflict(err error) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	if de.Type == TypeMergeMapping || strings.Contains(de.Reason, "MergeMappingException") {
		return true
	}
	if de.Type != TypeIllegalArg {
		return false
	}
	for _, marker := range mergeConflictMarkers {
		if strings.Contains(de.Reason, marker) {
			return true
		}
	}
	return false
}

// mergeConflictMarkers are the illegal_argument_exception reasons a store
// gives for a mapping change it cannot apply in place.
var mergeConflictMarkers = []string{
	"of different type",
	"Merge failed with failures",
	"conflicts with existing mapping",
	"has different [",
}
