package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCandidate_MarshalJSON_MergesIDWithValues(t *testing.T) {
	c := Candidate{ID: 7, Values: map[string]any{"score": 0.5}}
	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, float64(7), decoded["id"])
	require.Equal(t, 0.5, decoded["score"])
}

func TestCandidate_UnmarshalJSON_RoundTrip(t *testing.T) {
	raw := []byte(`{"id":3,"score":1.5}`)
	var c Candidate
	require.NoError(t, json.Unmarshal(raw, &c))
	require.Equal(t, int64(3), c.ID)
	require.Equal(t, 1.5, c.Values["score"])
}

func TestResponse_SuccessAndErrorAreMutuallyExclusiveInWire(t *testing.T) {
	success := NewSuccessResponse("req-1", []Candidate{{ID: 1, Values: map[string]any{}}})
	raw, err := json.Marshal(success)
	require.NoError(t, err)
	require.Contains(t, string(raw), "candidates")
	require.NotContains(t, string(raw), `"error"`)

	failure := NewErrorResponse("req-2", "validation", "bad request")
	raw, err = json.Marshal(failure)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"error"`)
	require.NotContains(t, string(raw), "candidates")
}
