package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanStoreIndex_Validate_AcceptsWellFormedIndex(t *testing.T) {
	idx := PlanStoreIndex{
		SchemaVersion: 1,
		Plans: []PlanStoreEntry{
			{Name: "rank_v1", Path: "rank_v1.json", Digest: "abc"},
		},
	}
	require.NoError(t, idx.Validate())
}

func TestPlanStoreIndex_Validate_RejectsBadNamePattern(t *testing.T) {
	idx := PlanStoreIndex{
		SchemaVersion: 1,
		Plans: []PlanStoreEntry{
			{Name: "../escape", Path: "x.json"},
		},
	}
	require.Error(t, idx.Validate())
}
