package plan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/smilemakc/dagengine/internal/apperr"
)

var planNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// StoreEntry is one plan's index.json record.
type StoreEntry struct {
	Name                string  `json:"name"`
	Path                string  `json:"path"`
	Digest              string  `json:"digest"`
	CapabilitiesDigest  string  `json:"capabilities_digest"`
	BuiltBy             BuiltBy `json:"built_by"`
}

// StoreIndex is a plan directory's index.json.
type StoreIndex struct {
	SchemaVersion int          `json:"schema_version"`
	Plans         []StoreEntry `json:"plans"`
}

// Store loads plan artifacts from a directory containing an index.json
// plus one JSON file per plan, validating every plan name against its
// source filename stem before it is ever handed to Validate.
type Store struct {
	dir   string
	index StoreIndex
	byName map[string]StoreEntry
}

// OpenStore reads dir's index.json and validates its entries' shape
// (name pattern, no duplicate names) without yet reading plan bodies or
// checking that their paths exist — plan bodies are read and parsed
// lazily by Load.
func OpenStore(dir string) (*Store, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "read plan store index")
	}
	var idx StoreIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "parse plan store index")
	}

	byName := make(map[string]StoreEntry, len(idx.Plans))
	for _, e := range idx.Plans {
		if !planNamePattern.MatchString(e.Name) {
			return nil, apperr.New(apperr.KindValidation, "plan name %q does not match [A-Za-z0-9_]+", e.Name)
		}
		if _, dup := byName[e.Name]; dup {
			return nil, apperr.New(apperr.KindValidation, "duplicate plan name %q in index", e.Name)
		}
		byName[e.Name] = e
	}

	return &Store{dir: dir, index: idx, byName: byName}, nil
}

// OpenSingle builds a one-entry Store over a standalone plan artifact
// file, for callers that have a plan path rather than a store
// directory (the CLI's --plan flag). Its entry carries no digest, so
// Load skips the index-digest check; the filename-stem check against
// the artifact's own plan_name still applies.
func OpenSingle(path string) (*Store, error) {
	stem := filenameStem(path)
	if !planNamePattern.MatchString(stem) {
		return nil, apperr.New(apperr.KindValidation, "plan file stem %q does not match [A-Za-z0-9_]+", stem)
	}
	entry := StoreEntry{Name: stem, Path: filepath.Base(path)}
	return &Store{
		dir:    filepath.Dir(path),
		index:  StoreIndex{SchemaVersion: 1, Plans: []StoreEntry{entry}},
		byName: map[string]StoreEntry{stem: entry},
	}, nil
}

// List returns every plan's index entry.
func (s *Store) List() []StoreEntry {
	return s.index.Plans
}

// Load reads and parses the named plan's artifact file, rejecting it if
// its plan_name field does not equal the source filename's stem, or if
// its canonical digest does not match the index entry.
func (s *Store) Load(name string) (*Plan, error) {
	entry, ok := s.byName[name]
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "plan %q not found in store", name)
	}

	path := filepath.Join(s.dir, entry.Path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "read plan artifact %q", name)
	}

	stem := filenameStem(entry.Path)
	p, err := Parse(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "parse plan artifact %q", name)
	}
	if p.Name != stem {
		return nil, apperr.New(apperr.KindValidation, "plan_name %q does not match source filename stem %q", p.Name, stem)
	}

	digest, err := ArtifactDigest(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "digest plan artifact %q", name)
	}
	if entry.Digest != "" && digest != entry.Digest {
		return nil, apperr.New(apperr.KindValidation, "plan %q digest %s does not match index digest %s", name, digest, entry.Digest)
	}

	return p, nil
}

func filenameStem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
