// Package epas holds the domain types shared by the chunker, the vector
// store and the retriever.
package epas

import "strconv"

// Section is a logical document unit produced by a document loader.
type Section struct {
	Text         string `json:"text"`
	Volume       string `json:"volume"`
	SectionID    string `json:"section_id,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
	StartPage    int    `json:"start_page,omitempty"`
	EndPage      int    `json:"end_page,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

// Metadata carries the section attributes of a chunk plus its position
// within the section's chunk sequence.
type Metadata struct {
	Volume       string
	SectionID    string
	SectionTitle string
	StartPage    int
	EndPage      int
	DocumentType string
	ChunkIndex   int
	TotalChunks  int
}

// Value returns the metadata field named key as a string. Keys use the
// snake_case names of the section record.
func (m Metadata) Value(key string) (string, bool) {
	switch key {
	case "volume":
		return m.Volume, true
	case "section_id":
		return m.SectionID, true
	case "section_title":
		return m.SectionTitle, true
	case "start_page":
		return strconv.Itoa(m.StartPage), true
	case "end_page":
		return strconv.Itoa(m.EndPage), true
	case "document_type":
		return m.DocumentType, true
	case "chunk_index":
		return strconv.Itoa(m.ChunkIndex), true
	case "total_chunks":
		return strconv.Itoa(m.TotalChunks), true
	}
	return "", false
}

// SectionKey identifies the section a chunk was cut from.
func (m Metadata) SectionKey() SectionKey {
	return SectionKey{Volume: m.Volume, SectionID: m.SectionID, StartPage: m.StartPage}
}

// SectionKey is the (volume, section_id, start_page) triple that chunk ids
// are derived from.
type SectionKey struct {
	Volume    string
	SectionID string
	StartPage int
}

// Chunk is the atomic retrieval unit.
type Chunk struct {
	ID         string
	Text       string
	Metadata   Metadata
	TokenCount int
	// Embedding is set between embedding and index build only. Stores keep
	// vectors in the index, never on the chunk record.
	Embedding []float32
}

// Filter is an exact-match metadata predicate, e.g. {"volume": "I"}.
type Filter map[string]string

// Matches reports whether m satisfies every key/value pair of f.
// An empty filter matches everything; unknown keys never match.
func (f Filter) Matches(m Metadata) bool {
	for k, want := range f {
		got, ok := m.Value(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// VolumeFilter returns a filter restricting results to one volume, or nil
// when volume is empty.
func VolumeFilter(volume string) Filter {
	if volume == "" {
		return nil
	}
	return Filter{"volume": volume}
}
