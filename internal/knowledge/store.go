// Package knowledge is a small in-memory fact store with transitive
// inheritance inference. It backs the assistant's knowledge tools.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FactInheritance links Links[0] (child) to Links[1] (parent).
const FactInheritance = "inheritance"

// Query kinds.
const (
	QueryByType  = "by_type"
	QueryByName  = "by_name"
	QueryLinksTo = "links_to"
)

var (
	ErrInvalidFact  = errors.New("invalid fact")
	ErrInvalidQuery = errors.New("invalid query")
)

// Fact is a typed node or link with a confidence in [0,1].
type Fact struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	Links      []string  `json:"links,omitempty"`
	Confidence float64   `json:"confidence"`
	Derived    bool      `json:"derived,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the knowledge collaborator consumed by tools.
type Store interface {
	InsertFact(ctx context.Context, factType, name string, links []string, confidence float64) (string, error)
	Query(ctx context.Context, kind, target string) ([]Fact, error)
	RunInference(ctx context.Context, steps int) (int, error)
}

// MemoryStore keeps facts in process memory. Writes are serialized.
type MemoryStore struct {
	mu    sync.RWMutex
	facts map[string]*Fact
	order []string
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		facts: make(map[string]*Fact),
		now:   time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// InsertFact adds a fact. Named facts of the same type are deduplicated:
// re-inserting keeps the existing id and raises the confidence to the
// maximum of both.
func (s *MemoryStore) InsertFact(_ context.Context, factType, name string, links []string, confidence float64) (string, error) {
	factType = strings.TrimSpace(factType)
	if factType == "" {
		return "", fmt.Errorf("%w: type is required", ErrInvalidFact)
	}
	if confidence < 0 || confidence > 1 {
		return "", fmt.Errorf("%w: confidence %.2f outside [0,1]", ErrInvalidFact, confidence)
	}
	if factType == FactInheritance && len(links) != 2 {
		return "", fmt.Errorf("%w: inheritance needs exactly two links", ErrInvalidFact)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, link := range links {
		if s.resolveLocked(link) == nil {
			return "", fmt.Errorf("%w: unknown link target %q", ErrInvalidFact, link)
		}
	}
	resolved := make([]string, len(links))
	for i, link := range links {
		resolved[i] = s.resolveLocked(link).ID
	}

	if existing := s.findLocked(factType, name, resolved); existing != nil {
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
		return existing.ID, nil
	}
	return s.addLocked(factType, name, resolved, confidence, false), nil
}

// Query lists facts matching kind and target, ordered by insertion.
func (s *MemoryStore) Query(_ context.Context, kind, target string) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match func(f *Fact) bool
	switch kind {
	case QueryByType:
		match = func(f *Fact) bool { return f.Type == target }
	case QueryByName:
		needle := strings.ToLower(target)
		match = func(f *Fact) bool { return f.Name != "" && strings.Contains(strings.ToLower(f.Name), needle) }
	case QueryLinksTo:
		ref := s.resolveLocked(target)
		if ref == nil {
			return []Fact{}, nil
		}
		match = func(f *Fact) bool {
			for _, l := range f.Links {
				if l == ref.ID {
					return true
				}
			}
			return false
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, kind)
	}

	out := make([]Fact, 0)
	for _, id := range s.order {
		if f := s.facts[id]; match(f) {
			cp := *f
			cp.Links = append([]string(nil), f.Links...)
			out = append(out, cp)
		}
	}
	return out, nil
}

// RunInference applies transitive deduction over inheritance facts for up to
// steps rounds: A->B and B->C derive A->C with the product of confidences.
// It returns the number of new facts.
func (s *MemoryStore) RunInference(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		edges := make(map[string][]*Fact)
		for _, id := range s.order {
			f := s.facts[id]
			if f.Type == FactInheritance {
				edges[f.Links[0]] = append(edges[f.Links[0]], f)
			}
		}

		type derivation struct {
			from, to   string
			confidence float64
		}
		var found []derivation
		seen := make(map[string]bool)
		for _, id := range s.order {
			ab := s.facts[id]
			if ab.Type != FactInheritance {
				continue
			}
			for _, bc := range edges[ab.Links[1]] {
				a, c := ab.Links[0], bc.Links[1]
				key := a + "->" + c
				if a == c || seen[key] || s.findLocked(FactInheritance, "", []string{a, c}) != nil {
					continue
				}
				seen[key] = true
				found = append(found, derivation{from: a, to: c, confidence: ab.Confidence * bc.Confidence})
			}
		}
		if len(found) == 0 {
			break
		}
		sort.SliceStable(found, func(i, j int) bool { return found[i].confidence > found[j].confidence })
		for _, d := range found {
			s.addLocked(FactInheritance, "", []string{d.from, d.to}, d.confidence, true)
		}
		total += len(found)
	}
	return total, nil
}

// Len returns the number of stored facts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

func (s *MemoryStore) addLocked(factType, name string, links []string, confidence float64, derived bool) string {
	f := &Fact{
		ID:         uuid.NewString(),
		Type:       factType,
		Name:       name,
		Links:      links,
		Confidence: confidence,
		Derived:    derived,
		CreatedAt:  s.now(),
	}
	s.facts[f.ID] = f
	s.order = append(s.order, f.ID)
	return f.ID
}

// resolveLocked finds a fact by id, or by exact (case-insensitive) name.
func (s *MemoryStore) resolveLocked(ref string) *Fact {
	if f, ok := s.facts[ref]; ok {
		return f
	}
	for _, id := range s.order {
		if f := s.facts[id]; f.Name != "" && strings.EqualFold(f.Name, ref) {
			return f
		}
	}
	return nil
}

func (s *MemoryStore) findLocked(factType, name string, links []string) *Fact {
	for _, id := range s.order {
		f := s.facts[id]
		if f.Type != factType || f.Name != name || len(f.Links) != len(links) {
			continue
		}
		same := true
		for i := range links {
			if f.Links[i] != links[i] {
				same = false
				break
			}
		}
		if same {
			return f
		}
	}
	return nil
}
