// Package registry loads the four immutable registries (key, parameter,
// endpoint, task manifest) from JSON, holding them read-only after Load
// and handed to callers as a read-only dependency.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dagengine/internal/column"
)

// KeyLifecycle is a key's deprecation state.
type KeyLifecycle string

const (
	LifecycleActive     KeyLifecycle = "active"
	LifecycleDeprecated KeyLifecycle = "deprecated"
	LifecycleBlocked    KeyLifecycle = "blocked"
)

// KeyType is a key column's value type.
type KeyType string

const (
	KeyTypeID     KeyType = "id"
	KeyTypeFloat  KeyType = "float"
	KeyTypeString KeyType = "string"
)

// KeyDef describes one entry of the key registry.
type KeyDef struct {
	ID        column.KeyID `json:"id"`
	Name      string       `json:"name"`
	Type      KeyType      `json:"type"`
	Lifecycle KeyLifecycle `json:"lifecycle"`
	Nullable  bool         `json:"nullable"`
	Writable  bool         `json:"writable"`
}

// ParamType is a parameter's value type.
type ParamType string

const (
	ParamTypeInt    ParamType = "int"
	ParamTypeFloat  ParamType = "float"
	ParamTypeBool   ParamType = "bool"
	ParamTypeString ParamType = "string"
)

// ParamDef describes one entry of the parameter registry: the same
// shape as KeyDef, including a lifecycle state — a parameter can be
// deprecated or blocked from request overrides the same way a key can
// be deprecated or blocked from writes.
type ParamDef struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       ParamType    `json:"type"`
	Lifecycle  KeyLifecycle `json:"lifecycle"`
	Nullable   bool         `json:"nullable"`
	AllowWrite bool         `json:"allow_write"`
}

// EndpointKind is the transport an endpoint uses.
type EndpointKind string

const (
	EndpointRedis EndpointKind = "redis"
	EndpointHTTP  EndpointKind = "http"
)

// EndpointPolicy bounds one endpoint's concurrency and latency.
type EndpointPolicy struct {
	MaxInflight       int `json:"max_inflight"`
	ConnectTimeoutMs  int `json:"connect_timeout_ms"`
	RequestTimeoutMs  int `json:"request_timeout_ms"`
}

// EndpointDef describes one entry of the endpoint registry, keyed by an
// "ep_####"-format ID.
type EndpointDef struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Kind   EndpointKind   `json:"kind"`
	Host   string         `json:"host"`
	Port   int            `json:"port"`
	Policy EndpointPolicy `json:"policy"`
}

// ParamSchemaEntry describes one accepted parameter of an operator.
type ParamSchemaEntry struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
	Nullable bool      `json:"nullable"`
}

// TaskManifestEntry describes one operator: its parameter schema, the
// keys it reads and statically writes, its output-shape pattern name,
// and whether the operator has an async implementation.
type TaskManifestEntry struct {
	Op           string             `json:"op"`
	Async        bool               `json:"async"`
	OutputShape  string             `json:"output_shape"`
	Params       []ParamSchemaEntry `json:"params"`
	ReadKeys     []column.KeyID     `json:"read_keys"`
	StaticWrites []column.KeyID     `json:"static_writes"`
	WritesEffect json.RawMessage    `json:"writes_effect,omitempty"`
}

// Set is the full, read-only registry bundle loaded once at process
// start.
type Set struct {
	Keys      map[column.KeyID]KeyDef
	Params    map[string]ParamDef
	Endpoints map[string]EndpointDef
	Manifest  map[string]TaskManifestEntry
}

type setJSON struct {
	Keys      []KeyDef            `json:"keys"`
	Params    []ParamDef          `json:"params"`
	Endpoints []EndpointDef       `json:"endpoints"`
	Manifest  []TaskManifestEntry `json:"task_manifest"`
}

// Load parses a registry bundle from raw JSON (the shape produced by the
// compiler side of this system; the engine only ever reads it).
func Load(data []byte) (*Set, error) {
	var raw setJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry set: %w", err)
	}

	s := &Set{
		Keys:      make(map[column.KeyID]KeyDef, len(raw.Keys)),
		Params:    make(map[string]ParamDef, len(raw.Params)),
		Endpoints: make(map[string]EndpointDef, len(raw.Endpoints)),
		Manifest:  make(map[string]TaskManifestEntry, len(raw.Manifest)),
	}
	for _, k := range raw.Keys {
		if _, dup := s.Keys[k.ID]; dup {
			return nil, fmt.Errorf("duplicate key id %d", k.ID)
		}
		s.Keys[k.ID] = k
	}
	for _, p := range raw.Params {
		if _, dup := s.Params[p.ID]; dup {
			return nil, fmt.Errorf("duplicate param id %q", p.ID)
		}
		s.Params[p.ID] = p
	}
	for _, e := range raw.Endpoints {
		if _, dup := s.Endpoints[e.ID]; dup {
			return nil, fmt.Errorf("duplicate endpoint id %q", e.ID)
		}
		s.Endpoints[e.ID] = e
	}
	for _, m := range raw.Manifest {
		if _, dup := s.Manifest[m.Op]; dup {
			return nil, fmt.Errorf("duplicate task manifest entry %q", m.Op)
		}
		s.Manifest[m.Op] = m
	}

	if row1, ok := s.Keys[1]; ok && row1.Writable {
		return nil, fmt.Errorf("key id 1 (row identifier) must not be writable")
	}
	return s, nil
}

// KeyByName looks up a key definition by name, for CLI/request
// output_keys resolution.
func (s *Set) KeyByName(name string) (KeyDef, bool) {
	for _, k := range s.Keys {
		if k.Name == name {
			return k, true
		}
	}
	return KeyDef{}, false
}
