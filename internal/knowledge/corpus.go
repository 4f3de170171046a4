// Package knowledge manages the markdown document corpus the assistant
// draws grounding context from. Documents are ordered, taggable, and
// scored against an utterance with plain term overlap so retrieval stays
// deterministic.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Sentinel errors for corpus operations.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDuplicateID      = errors.New("document id already exists")
	ErrEmptyID          = errors.New("document id is empty")
)

// Document is one entry in the corpus. Pinned documents are always
// included when context is assembled, regardless of relevance score.
type Document struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
	Pinned  bool     `json:"pinned,omitempty"`
}

// Corpus holds documents in insertion order and exposes deterministic
// relevance ranking. All methods are safe for concurrent use.
type Corpus struct {
	mu      sync.RWMutex
	docs    []Document
	byID    map[string]int
	version string
}

// NewCorpus creates an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{byID: make(map[string]int)}
}

// Add appends a document to the corpus.
func (c *Corpus) Add(doc Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return ErrEmptyID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[doc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, doc.ID)
	}
	c.byID[doc.ID] = len(c.docs)
	c.docs = append(c.docs, doc)
	c.version = ""
	return nil
}

// Update replaces the document with doc.ID, keeping its position.
func (c *Corpus) Update(doc Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return ErrEmptyID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byID[doc.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, doc.ID)
	}
	c.docs[idx] = doc
	c.version = ""
	return nil
}

// Remove deletes the document with the given id.
func (c *Corpus) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	c.docs = append(c.docs[:idx], c.docs[idx+1:]...)
	delete(c.byID, id)
	for i := idx; i < len(c.docs); i++ {
		c.byID[c.docs[i].ID] = i
	}
	c.version = ""
	return nil
}

// Get returns the document with the given id.
func (c *Corpus) Get(id string) (Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return c.docs[idx], nil
}

// All returns the documents in corpus order.
func (c *Corpus) All() []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Document, len(c.docs))
	copy(out, c.docs)
	return out
}

// Len returns the number of documents.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Version returns a content hash over the corpus. It changes whenever a
// document is added, updated, or removed, and is stable across restarts
// for identical content.
func (c *Corpus) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version == "" {
		h := sha256.New()
		for _, d := range c.docs {
			fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%t\n",
				d.ID, d.Title, d.Content, strings.Join(d.Tags, ","), d.Pinned)
		}
		c.version = hex.EncodeToString(h.Sum(nil))[:16]
	}
	return c.version
}

// scored pairs a document with its relevance score and original position.
type scored struct {
	doc   Document
	score int
	pos   int
}

// Relevant returns up to k documents ranked by term overlap with the
// utterance. Pinned documents are always included first, in corpus
// order, and do not count against k. Among scored documents, ties break
// by corpus order.
func (c *Corpus) Relevant(utterance string, k int) []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()

	terms := tokenize(utterance)
	var pinned []Document
	var candidates []scored
	for i, d := range c.docs {
		if d.Pinned {
			pinned = append(pinned, d)
			continue
		}
		if s := scoreDoc(d, terms); s > 0 {
			candidates = append(candidates, scored{doc: d, score: s, pos: i})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].pos < candidates[j].pos
	})

	out := pinned
	for i := 0; i < len(candidates) && i < k; i++ {
		out = append(out, candidates[i].doc)
	}
	return out
}

// scoreDoc counts term hits: tag matches weigh heaviest, then title,
// then body occurrences.
func scoreDoc(d Document, terms []string) int {
	title := strings.ToLower(d.Title)
	body := strings.ToLower(d.Content)
	score := 0
	for _, term := range terms {
		for _, tag := range d.Tags {
			if strings.EqualFold(tag, term) {
				score += 5
			}
		}
		if strings.Contains(title, term) {
			score += 3
		}
		if strings.Contains(body, term) {
			score++
		}
	}
	return score
}

// stopWords are dropped before scoring.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "can": true,
	"do": true, "for": true, "how": true, "i": true, "in": true,
	"is": true, "it": true, "me": true, "my": true, "of": true,
	"on": true, "or": true, "show": true, "the": true, "to": true,
	"what": true, "you": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '-' || r == '_')
	})
	var terms []string
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
