// Package artifact provides the keyed accumulation area where job instances
// upload named outputs and downstream jobs merge them.
//
// The store is ephemeral and scoped to one run. Uploads are append-only per
// (name, origin) pair. Merge is defined to run only after all contributing
// instances are terminal; that precondition is the caller's responsibility,
// the store itself only checks completeness.
package artifact

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sourceplane/flowci/internal/model"
)

// DuplicateArtifactError reports a re-upload under an existing
// (name, origin) key, which would otherwise silently clobber a matrix
// leg's contribution.
type DuplicateArtifactError struct {
	Name   string
	Origin string
}

func (e *DuplicateArtifactError) Error() string {
	return fmt.Sprintf("artifact %s already uploaded by %s", e.Name, e.Origin)
}

// Pair identifies one expected (name, origin) contribution.
type Pair struct {
	Name   string
	Origin string
}

func (p Pair) String() string {
	return fmt.Sprintf("%s from %s", p.Name, p.Origin)
}

// MissingArtifactError names every expected contribution absent at merge
// time. Missing legs are reported, never silently skipped, because the
// downstream aggregation needs every contribution to be meaningful.
type MissingArtifactError struct {
	Pairs []Pair
}

func (e *MissingArtifactError) Error() string {
	parts := make([]string, len(e.Pairs))
	for i, p := range e.Pairs {
		parts[i] = p.String()
	}
	return fmt.Sprintf("missing artifacts: %s", strings.Join(parts, ", "))
}

type key struct {
	name   string
	origin string
}

// Store is the in-memory artifact store for a single run. Concurrent
// uploads under distinct keys do not contend beyond the map lock.
type Store struct {
	mu      sync.RWMutex
	objects map[key]model.Artifact
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{objects: make(map[key]model.Artifact)}
}

// Upload records a payload under (name, origin). Re-uploading an existing
// key is rejected with DuplicateArtifactError.
func (s *Store) Upload(origin, name string, payload []byte) error {
	if name == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	if origin == "" {
		return fmt.Errorf("artifact origin cannot be empty")
	}

	k := key{name: name, origin: origin}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[k]; exists {
		return &DuplicateArtifactError{Name: name, Origin: origin}
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.objects[k] = model.Artifact{Name: name, Origin: origin, Payload: buf}
	return nil
}

// Merge unions the contributions for the expected (name -> origins) map,
// keyed by origin label. Every absent pair is collected into a single
// MissingArtifactError.
func (s *Store) Merge(expect map[string][]string) (model.ArtifactSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(model.ArtifactSet)
	var missing []Pair

	names := make([]string, 0, len(expect))
	for name := range expect {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		origins := append([]string{}, expect[name]...)
		sort.Strings(origins)
		for _, origin := range origins {
			a, ok := s.objects[key{name: name, origin: origin}]
			if !ok {
				missing = append(missing, Pair{Name: name, Origin: origin})
				continue
			}
			merged.Add(a)
		}
	}

	if len(missing) > 0 {
		return nil, &MissingArtifactError{Pairs: missing}
	}
	return merged, nil
}

// Get returns the artifact stored under (name, origin).
func (s *Store) Get(name, origin string) (model.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.objects[key{name: name, origin: origin}]
	return a, ok
}

// List returns every stored artifact, sorted by name then origin.
func (s *Store) List() []model.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Artifact, 0, len(s.objects))
	for _, a := range s.objects {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Origin < out[j].Origin
	})
	return out
}

// Origins returns the origin labels that have uploaded under name, sorted.
func (s *Store) Origins(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var origins []string
	for k := range s.objects {
		if k.name == name {
			origins = append(origins, k.origin)
		}
	}
	sort.Strings(origins)
	return origins
}
