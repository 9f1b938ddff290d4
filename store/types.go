package store

import (
	"time"

	"github.com/nacht-org/quelle-store/manifest"
)

// AssetFile is one asset to be published: its display name, type, and raw
// bytes.
type AssetFile struct {
	Name      string
	AssetType manifest.AssetType
	Bytes     []byte
}

// Package is the in-memory bundle handed to Publish. The manifest's
// WasmFile/Assets FileReferences are computed by Publish itself; callers
// supply only the identifying fields and raw bytes.
type Package struct {
	ID               string
	Name             string
	Version          string
	Author           string
	Description      string
	SupportedDomains []string
	WasmBytes        []byte
	Assets           []AssetFile
}

// PublishOptions controls collision and size behavior for Publish.
type PublishOptions struct {
	Overwrite bool
	MaxSize   uint64 // 0 means unbounded
}

// UnpublishOptions controls NotFound and tombstone behavior for Unpublish.
type UnpublishOptions struct {
	Idempotent bool
	KeepRecord bool
}

// PublishResult reports the outcome of a successful Publish.
type PublishResult struct {
	ID              string
	Version         string
	PreviousVersion string
	Warnings        []string
	CompletedAt     time.Time
}

// UnpublishResult reports the outcome of a successful Unpublish.
type UnpublishResult struct {
	ID          string
	Version     string
	Warnings    []string
	CompletedAt time.Time
}

// SortOrder selects how Search results are ordered.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortName      SortOrder = "name"
	SortUpdatedAt SortOrder = "updated_at"
	SortSize      SortOrder = "size"
)

// Query describes a search over a store's extension summaries.
type Query struct {
	Text    string
	Author  string
	Tags    map[string]struct{}
	Domains map[string]struct{}
	Sort    SortOrder
	Offset  int
	Limit   int
}

// Hit is one search result: the summary plus its relevance score. The score
// is set for every sort order; it is 1 when Query.Text is empty.
type Hit struct {
	Summary   manifest.ExtensionSummary
	Relevance float64
}
