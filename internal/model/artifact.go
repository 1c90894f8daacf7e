package model

import "sort"

// Artifact is a named byte payload produced by one job instance. Origin is
// the producing instance's ID; payloads from different matrix legs of the
// same job carry the same Name with distinct Origins.
type Artifact struct {
	Name    string
	Origin  string
	Payload []byte
}

// ArtifactSet maps artifact name -> origin label -> artifact. Multiple
// instances may contribute under the same logical name; the union is keyed
// by origin so contributions never silently overwrite each other.
type ArtifactSet map[string]map[string]Artifact

// Add inserts an artifact into the set, allocating the inner map on first
// use of the name.
func (s ArtifactSet) Add(a Artifact) {
	byOrigin, ok := s[a.Name]
	if !ok {
		byOrigin = make(map[string]Artifact)
		s[a.Name] = byOrigin
	}
	byOrigin[a.Origin] = a
}

// Lookup returns the artifact for a (name, origin) pair.
func (s ArtifactSet) Lookup(name, origin string) (Artifact, bool) {
	a, ok := s[name][origin]
	return a, ok
}

// Names returns the artifact names present in the set, sorted.
func (s ArtifactSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len counts the (name, origin) entries in the set.
func (s ArtifactSet) Len() int {
	n := 0
	for _, byOrigin := range s {
		n += len(byOrigin)
	}
	return n
}
