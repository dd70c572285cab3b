// Package memory provides a naive process-local echo store that can back the
// situational context builder's memory-echo extension point. Swap it for a
// vector DB or semantic index for production retrieval.
package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/composekit/unitflow/situation"
)

// StoredEcho is the internal representation persisted by InMemoryStore.
type StoredEcho struct {
	Content  string
	Source   string
	Keywords []string
}

// InMemoryStore is an append-only recollection store with keyword-overlap
// scoring. Concurrency: protected by RWMutex so one store may feed several
// units as a shared-read-only echo source.
type InMemoryStore struct {
	mu     sync.RWMutex
	echoes []StoredEcho
}

// NewInMemoryStore creates an empty echo store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Store appends a recollection attributed to source.
func (m *InMemoryStore) Store(content, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.echoes = append(m.echoes, StoredEcho{
		Content:  content,
		Source:   source,
		Keywords: keywords(content),
	})
}

// Len returns the number of stored recollections.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.echoes)
}

// Recall scores stored recollections against the raw input by keyword
// overlap and returns up to limit echoes, highest relevance first.
func (m *InMemoryStore) Recall(raw string, limit int) []situation.Echo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queryWords := keywords(raw)
	if len(queryWords) == 0 || limit <= 0 {
		return []situation.Echo{}
	}

	results := make([]situation.Echo, 0, limit)
	for _, stored := range m.echoes {
		score := overlap(queryWords, stored.Keywords)
		if score > 0 {
			results = append(results, situation.Echo{
				Content:   stored.Content,
				Relevance: score,
				Source:    stored.Source,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Provider adapts the store to the builder's extension point, capped at
// limit echoes per build.
func (m *InMemoryStore) Provider(limit int) situation.EchoProvider {
	return func(raw string) []situation.Echo {
		return m.Recall(raw, limit)
	}
}

func keywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'")
		if len(f) >= 3 {
			words = append(words, f)
		}
	}
	return words
}

// overlap returns the fraction of query words present in the candidate set.
func overlap(query, candidate []string) float64 {
	if len(query) == 0 {
		return 0
	}
	set := make(map[string]bool, len(candidate))
	for _, w := range candidate {
		set[w] = true
	}
	hits := 0
	for _, w := range query {
		if set[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
