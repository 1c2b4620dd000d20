package tag

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Tag is an interned identifier. Two tags are equal when their keys are equal;
// Name is carried for logging only.
type Tag struct {
	Key  uint32
	Name string
}

// IsZero reports whether t is the unset tag.
func (t Tag) IsZero() bool { return t.Key == 0 }

func (t Tag) String() string {
	if t.IsZero() {
		return "<none>"
	}
	return t.Name
}

// Registry interns tag names into stable keys. Keys start at 1 so the zero
// Tag never collides with a registered one.
//
// Thread-safe: catalog loaders and the update loop may share one registry.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tag
	byKey  []Tag
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// Get returns the tag for name, interning it on first use.
// Names are trimmed; an empty name yields the zero Tag.
func (r *Registry) Get(name string) Tag {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}
	}

	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byName[name]; ok {
		return t
	}
	t = Tag{Key: uint32(len(r.byKey)), Name: name}
	r.byName[name] = t
	r.byKey = append(r.byKey, t)
	return t
}

// GetAll interns every name in order.
func (r *Registry) GetAll(names ...string) []Tag {
	if len(names) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(names))
	for _, n := range names {
		if t := r.Get(n); !t.IsZero() {
			out = append(out, t)
		}
	}
	return out
}

// Lookup returns the tag for name without interning it.
func (r *Registry) Lookup(name string) (Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[strings.TrimSpace(name)]
	return t, ok
}

// ByKey resolves a key back to its tag.
func (r *Registry) ByKey(key uint32) (Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key == 0 || int(key) >= len(r.byKey) {
		return Tag{}, false
	}
	return r.byKey[key], true
}

// Len returns the number of interned tags.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey) - 1
}

// Reset drops every interned tag. Tags handed out before Reset must not be
// mixed with tags handed out after it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]Tag, 64)
	r.byKey = make([]Tag, 1, 64)
}

// View is read access to a weighted tag collection.
type View interface {
	HasTag(t Tag) bool
	Weight(t Tag) int
}

// Set is a weighted tag multiset. Granting the same tag from two sources
// gives it weight 2; it stays present until both grants are revoked.
// The zero value is ready to use.
type Set struct {
	weights map[Tag]int
}

// Add grants each tag once.
func (s *Set) Add(tags ...Tag) {
	for _, t := range tags {
		if t.IsZero() {
			continue
		}
		if s.weights == nil {
			s.weights = make(map[Tag]int, 8)
		}
		s.weights[t]++
	}
}

// Remove revokes one grant of each tag.
func (s *Set) Remove(tags ...Tag) {
	for _, t := range tags {
		w, ok := s.weights[t]
		if !ok {
			continue
		}
		if w <= 1 {
			delete(s.weights, t)
		} else {
			s.weights[t] = w - 1
		}
	}
}

// HasTag reports whether t has positive weight.
func (s *Set) HasTag(t Tag) bool { return s.weights[t] > 0 }

// Weight returns the number of outstanding grants of t.
func (s *Set) Weight(t Tag) int { return s.weights[t] }

// Len returns the number of distinct tags present.
func (s *Set) Len() int { return len(s.weights) }

// Tags returns present tags ordered by key.
func (s *Set) Tags() []Tag {
	out := make([]Tag, 0, len(s.weights))
	for t := range s.weights {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Set) String() string {
	tags := s.Tags()
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("%s×%d", t.Name, s.weights[t])
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// HasAll reports whether every tag is present in v.
func HasAll(v View, tags ...Tag) bool {
	for _, t := range tags {
		if !v.HasTag(t) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one tag is present in v.
// An empty list never matches.
func HasAny(v View, tags ...Tag) bool {
	for _, t := range tags {
		if v.HasTag(t) {
			return true
		}
	}
	return false
}

// Contains reports whether t is in list.
func Contains(list []Tag, t Tag) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}
