package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSet = `{
  "keys": [
    {"id": 1, "name": "row_id", "type": "id", "lifecycle": "active", "nullable": false, "writable": false},
    {"id": 1000, "name": "score", "type": "float", "lifecycle": "active", "nullable": true, "writable": true}
  ],
  "params": [
    {"id": "weight", "name": "weight", "type": "float", "nullable": true, "allow_write": true}
  ],
  "endpoints": [
    {"id": "ep_0001", "name": "profile_store", "kind": "redis", "host": "localhost", "port": 6379,
     "policy": {"max_inflight": 64, "connect_timeout_ms": 100, "request_timeout_ms": 200}}
  ],
  "task_manifest": [
    {"op": "vm", "async": false, "output_shape": "unary-preserve-view",
     "params": [{"name": "expr", "type": "string", "required": true, "nullable": false}],
     "read_keys": [1000], "static_writes": []}
  ]
}`

func TestLoad_Success(t *testing.T) {
	s, err := Load([]byte(sampleSet))
	require.NoError(t, err)
	require.Len(t, s.Keys, 2)
	require.Len(t, s.Params, 1)
	require.Len(t, s.Endpoints, 1)
	require.Len(t, s.Manifest, 1)

	k, ok := s.KeyByName("score")
	require.True(t, ok)
	require.EqualValues(t, 1000, k.ID)
}

func TestLoad_RejectsWritableRowIdentifier(t *testing.T) {
	bad := `{"keys":[{"id":1,"name":"row_id","type":"id","lifecycle":"active","nullable":false,"writable":true}],
	  "params":[],"endpoints":[],"task_manifest":[]}`
	_, err := Load([]byte(bad))
	require.Error(t, err)
}

func TestLoad_RejectsDuplicateKeyID(t *testing.T) {
	bad := `{"keys":[
	  {"id":1000,"name":"a","type":"float","lifecycle":"active","nullable":true,"writable":true},
	  {"id":1000,"name":"b","type":"float","lifecycle":"active","nullable":true,"writable":true}
	],"params":[],"endpoints":[],"task_manifest":[]}`
	_, err := Load([]byte(bad))
	require.Error(t, err)
}

func TestCanonicalDigest_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "nested": map[string]any{"z": 1, "y": 2}}
	b := map[string]any{"a": 2, "b": 1, "nested": map[string]any{"y": 2, "z": 1}}

	da, err := CanonicalDigest(a)
	require.NoError(t, err)
	db, err := CanonicalDigest(b)
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestCanonicalDigest_DifferentValuesDiffer(t *testing.T) {
	da, err := CanonicalDigest(map[string]any{"a": 1})
	require.NoError(t, err)
	db, err := CanonicalDigest(map[string]any{"a": 2})
	require.NoError(t, err)
	require.NotEqual(t, da, db)
}
