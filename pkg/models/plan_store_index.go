package models

// PlanStoreEntry mirrors one entry of a plan store's index.json.
type PlanStoreEntry struct {
	Name               string              `json:"name" validate:"required,plan_name"`
	Path               string              `json:"path" validate:"required"`
	Digest             string              `json:"digest"`
	CapabilitiesDigest string              `json:"capabilities_digest"`
	BuiltBy            PlanArtifactBuiltBy `json:"built_by"`
}

// PlanStoreIndex mirrors a plan store's index.json for structural
// validation at the API boundary. (cmd/dagengine's --list-plans prints
// internal/plan.Store.List, not this type.)
type PlanStoreIndex struct {
	SchemaVersion int              `json:"schema_version" validate:"required"`
	Plans         []PlanStoreEntry `json:"plans" validate:"dive"`
}

// Validate checks PlanStoreIndex's structural constraints (name pattern,
// required fields). It does not check for duplicate names or verify
// digests — internal/plan.OpenStore rejects duplicate names and
// Store.Load checks each artifact's digest.
func (idx *PlanStoreIndex) Validate() error {
	return planArtifactValidator.Struct(idx)
}
