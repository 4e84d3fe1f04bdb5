package models

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var planNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// PlanArtifactNode mirrors one entry of a plan artifact's nodes array
//, for structural pre-validation ahead of internal/plan.Parse.
type PlanArtifactNode struct {
	NodeID     string                 `json:"node_id" validate:"required"`
	Op         string                 `json:"op" validate:"required"`
	Inputs     []string               `json:"inputs"`
	Params     map[string]any         `json:"params"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// PlanArtifactBuiltBy mirrors the built_by block.
type PlanArtifactBuiltBy struct {
	Backend     string `json:"backend" validate:"required"`
	Tool        string `json:"tool" validate:"required"`
	ToolVersion string `json:"tool_version" validate:"required"`
}

// PlanArtifact is the bit-stable wire shape of a compiled plan.
// It exists for structural validation at the API boundary only — the
// authoritative parse, link, and validate pipeline is
// internal/plan.Parse + internal/plan.Validate, which operates on the
// canonical JSON bytes directly rather than through this struct.
type PlanArtifact struct {
	SchemaVersion        int                        `json:"schema_version" validate:"required"`
	PlanName             string                     `json:"plan_name" validate:"required,plan_name"`
	Nodes                []PlanArtifactNode         `json:"nodes" validate:"required,dive"`
	Outputs              []string                   `json:"outputs" validate:"required,min=1"`
	ExprTable            map[string]interface{}     `json:"expr_table"`
	PredTable            map[string]interface{}     `json:"pred_table"`
	CapabilitiesRequired []string                   `json:"capabilities_required"`
	Extensions           map[string]interface{}     `json:"extensions,omitempty"`
	BuiltBy              PlanArtifactBuiltBy        `json:"built_by" validate:"required"`
}

var planArtifactValidator = newPlanArtifactValidator()

func newPlanArtifactValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("plan_name", func(fl validator.FieldLevel) bool {
		return planNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks PlanArtifact's structural constraints. It does not
// check DAG well-formedness, operator existence, or capability gating —
// that is internal/plan.Validate's job once the artifact is parsed.
func (p *PlanArtifact) Validate() error {
	return planArtifactValidator.Struct(p)
}
