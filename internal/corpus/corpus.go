// Package corpus loads the regulatory text chunks that retrieval runs over.
//
// A corpus is an ordered, immutable sequence of chunks. The ordered sequence
// of chunk ids is the corpus identity: the vector cache is only reused when
// it was built from exactly the same sequence.
package corpus

import (
	"strings"
)

// Chunk is an indivisible unit of retrievable regulatory text
type Chunk struct {
	ID         string   `json:"chunk_id" yaml:"chunk_id"`
	Text       string   `json:"text" yaml:"text"`
	Source     string   `json:"source" yaml:"source"`
	SectionRef string   `json:"section_ref" yaml:"section_ref"`
	TemplateID string   `json:"template_id,omitempty" yaml:"template_id,omitempty"`
	Keywords   []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// SearchText returns the lowercased text and keywords used for keyword matching
func (c Chunk) SearchText() string {
	return strings.ToLower(c.Text) + " " + strings.ToLower(strings.Join(c.Keywords, " "))
}

// Corpus is an ordered collection of chunks
type Corpus struct {
	chunks []Chunk
	index  map[string]int
}

// New builds a corpus from chunks, keeping their order.
// Chunks are copied so later changes by the caller are not observed.
func New(chunks []Chunk) (*Corpus, error) {
	c := &Corpus{
		chunks: make([]Chunk, len(chunks)),
		index:  make(map[string]int, len(chunks)),
	}
	for i, ch := range chunks {
		if err := validateChunk(ch); err != nil {
			return nil, &LoadError{Index: i, Err: err}
		}
		if prev, ok := c.index[ch.ID]; ok {
			return nil, &LoadError{Index: i, Err: &DuplicateIDError{ID: ch.ID, First: prev}}
		}
		ch.Keywords = append([]string(nil), ch.Keywords...)
		c.chunks[i] = ch
		c.index[ch.ID] = i
	}
	return c, nil
}

// Len returns the number of chunks
func (c *Corpus) Len() int {
	return len(c.chunks)
}

// At returns the chunk at position i
func (c *Corpus) At(i int) Chunk {
	return c.chunks[i]
}

// Get returns the chunk with the given id
func (c *Corpus) Get(id string) (Chunk, bool) {
	i, ok := c.index[id]
	if !ok {
		return Chunk{}, false
	}
	return c.chunks[i], true
}

// IDs returns the ordered chunk id sequence
func (c *Corpus) IDs() []string {
	ids := make([]string, len(c.chunks))
	for i, ch := range c.chunks {
		ids[i] = ch.ID
	}
	return ids
}

// Texts returns chunk texts in corpus order
func (c *Corpus) Texts() []string {
	texts := make([]string, len(c.chunks))
	for i, ch := range c.chunks {
		texts[i] = ch.Text
	}
	return texts
}

// SameIDs reports whether ids equals the corpus id sequence elementwise
func (c *Corpus) SameIDs(ids []string) bool {
	if len(ids) != len(c.chunks) {
		return false
	}
	for i, ch := range c.chunks {
		if ids[i] != ch.ID {
			return false
		}
	}
	return true
}

func validateChunk(ch Chunk) error {
	var missing []string
	if strings.TrimSpace(ch.ID) == "" {
		missing = append(missing, "chunk_id")
	}
	if strings.TrimSpace(ch.Text) == "" {
		missing = append(missing, "text")
	}
	if strings.TrimSpace(ch.Source) == "" {
		missing = append(missing, "source")
	}
	if strings.TrimSpace(ch.SectionRef) == "" {
		missing = append(missing, "section_ref")
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}
