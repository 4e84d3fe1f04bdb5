package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// UserID accepts the wire request's user_id either as a JSON number or as
// a decimal string. UnmarshalJSON does not range-check the parsed value;
// Request.Validate rejects anything outside 1..2^32-1.
type UserID uint64

// MaxUserID is the largest accepted user_id (2^32-1).
const MaxUserID = 1<<32 - 1

func (u *UserID) UnmarshalJSON(data []byte) error {
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		n, err := asNumber.Int64()
		if err != nil {
			return fmt.Errorf("user_id: %w", err)
		}
		*u = UserID(n)
		return nil
	}

	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return fmt.Errorf("user_id: must be a number or a decimal string")
	}
	var n uint64
	if _, err := fmt.Sscanf(asString, "%d", &n); err != nil {
		return fmt.Errorf("user_id: %q is not a decimal integer", asString)
	}
	*u = UserID(n)
	return nil
}

func (u UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(u))
}

// Request is one execution request.
type Request struct {
	UserID           UserID         `json:"user_id" validate:"required,min=1,max=4294967295"`
	RequestID        string         `json:"request_id,omitempty"`
	Plan             string         `json:"plan,omitempty"`
	PlanName         string         `json:"plan_name,omitempty"`
	ParamOverrides   map[string]any `json:"param_overrides,omitempty"`
	OutputKeys       []string       `json:"output_keys,omitempty"`
	DeadlineMs       int64          `json:"deadline_ms,omitempty" validate:"omitempty,min=0"`
	NodeTimeoutMs    int64          `json:"node_timeout_ms,omitempty" validate:"omitempty,min=0"`
	FragmentVersions map[string]int `json:"fragment_versions,omitempty"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks Request's structural constraints and the rule
// that exactly one of plan / plan_name selects the compiled artifact.
func (r *Request) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return err
	}
	if r.Plan == "" && r.PlanName == "" {
		return fmt.Errorf("request: one of plan or plan_name is required")
	}
	if r.Plan != "" && r.PlanName != "" {
		return fmt.Errorf("request: plan and plan_name are mutually exclusive")
	}
	return nil
}
