package index

import (
	"fmt"
	"path"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/lexandro/assetindex-mcp/asset"
)

// NameIndex provides full-text search over asset names and paths using a Bleve in-memory index.
type NameIndex struct {
	index bleve.Index
}

// NewNameIndex creates a new in-memory name index.
func NewNameIndex() (*NameIndex, error) {
	bleveIndex, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating bleve index: %w", err)
	}
	return &NameIndex{index: bleveIndex}, nil
}

// nameDocument is the document structure stored in Bleve.
type nameDocument struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Kind string `json:"kind"`
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.IncludeInAll = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	pathFieldMapping := bleve.NewTextFieldMapping()
	pathFieldMapping.Store = true
	pathFieldMapping.IncludeInAll = true
	docMapping.AddFieldMappingsAt("path", pathFieldMapping)

	kindFieldMapping := bleve.NewKeywordFieldMapping()
	kindFieldMapping.Store = true
	kindFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("kind", kindFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Index adds or updates a record's name document.
func (ni *NameIndex) Index(rec *asset.Record) error {
	name := strings.TrimSuffix(path.Base(rec.Path), path.Ext(rec.Path))
	doc := nameDocument{
		// Split on common separators so "hero_idle" is found by "idle".
		Name: strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name),
		Path: rec.Path,
		Kind: rec.Kind.String(),
	}
	if err := ni.index.Index(string(rec.ID), doc); err != nil {
		return fmt.Errorf("indexing name %s: %w", rec.Path, err)
	}
	return nil
}

// Remove deletes a record's name document.
func (ni *NameIndex) Remove(id asset.ID) error {
	if err := ni.index.Delete(string(id)); err != nil {
		return fmt.Errorf("removing %s from name index: %w", id, err)
	}
	return nil
}

// Search returns ids matching the query, best first.
// Query format:
//   - Plain text: match query (word-level matching)
//   - "quoted text": phrase query
//   - /regex/: regexp query
func (ni *NameIndex) Search(queryString string, maxResults int) ([]asset.ID, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	searchRequest := bleve.NewSearchRequest(buildQuery(queryString))
	searchRequest.Size = maxResults

	searchResults, err := ni.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("searching name index: %w", err)
	}
	ids := make([]asset.ID, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		ids = append(ids, asset.ID(hit.ID))
	}
	return ids, nil
}

// buildQuery parses the query string into a Bleve query.
func buildQuery(queryString string) query.Query {
	queryString = strings.TrimSpace(queryString)

	if strings.HasPrefix(queryString, "/") && strings.HasSuffix(queryString, "/") && len(queryString) > 2 {
		return bleve.NewRegexpQuery(queryString[1 : len(queryString)-1])
	}
	if strings.HasPrefix(queryString, "\"") && strings.HasSuffix(queryString, "\"") && len(queryString) > 2 {
		return bleve.NewMatchPhraseQuery(queryString[1 : len(queryString)-1])
	}
	return bleve.NewMatchQuery(queryString)
}

// DocumentCount returns the number of documents in the Bleve index.
func (ni *NameIndex) DocumentCount() uint64 {
	count, _ := ni.index.DocCount()
	return count
}

// Clear drops all documents and recreates the index.
func (ni *NameIndex) Clear() error {
	if err := ni.index.Close(); err != nil {
		return fmt.Errorf("closing old index: %w", err)
	}
	newIndex, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("creating new index: %w", err)
	}
	ni.index = newIndex
	return nil
}

// Close closes the Bleve index.
func (ni *NameIndex) Close() error {
	return ni.index.Close()
}
