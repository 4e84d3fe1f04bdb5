package plan

import (
	"fmt"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/registry"
)

// Validated is the result of a successful Validate call: the plan plus
// its precomputed topological order.
type Validated struct {
	Plan      *Plan
	TopoOrder []string
}

// EffectiveWrites maps a node id to its fully evaluated write set (the
// union of the manifest's static writes and the evaluated writes-effect
// expression), returned alongside the Validated plan.
type EffectiveWrites = map[string]Result

// Validate runs the nine fail-closed checks in order, stopping at the
// first violation. reg supplies the key/param/endpoint/manifest
// registries; paramOverrides are the request's param_overrides, checked
// in step 7.
func Validate(p *Plan, reg *registry.Set, paramOverrides map[string]any) (*Validated, EffectiveWrites, error) {
	if err := checkSchemaVersion(p); err != nil {
		return nil, nil, err
	}
	if err := checkNodeIdentity(p); err != nil {
		return nil, nil, err
	}
	order, err := TopoOrder(p)
	if err != nil {
		return nil, nil, apperr.New(apperr.KindValidation, "%v", err)
	}
	if err := checkOperatorsAndParams(p, reg); err != nil {
		return nil, nil, err
	}
	if err := checkNoRowIDWrites(p, reg); err != nil {
		return nil, nil, err
	}
	if err := checkCapabilities(p); err != nil {
		return nil, nil, err
	}
	if err := checkParamOverrides(reg, paramOverrides); err != nil {
		return nil, nil, err
	}
	writes, err := computeEffectiveWrites(p, reg)
	if err != nil {
		return nil, nil, err
	}
	if err := checkEndpointReferences(p, reg); err != nil {
		return nil, nil, err
	}

	return &Validated{Plan: p, TopoOrder: order}, writes, nil
}

// checkSchemaVersion: step 1.
func checkSchemaVersion(p *Plan) error {
	if p.SchemaVersion != 1 {
		return apperr.New(apperr.KindValidation, "unknown schema_version %d", p.SchemaVersion)
	}
	return nil
}

// checkNodeIdentity: step 2 — unique node ids, inputs reference defined
// nodes.
func checkNodeIdentity(p *Plan) error {
	seen := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if _, dup := seen[n.ID]; dup {
			return apperr.New(apperr.KindValidation, "duplicate node id").WithNode(n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, n := range p.Nodes {
		for _, in := range n.Inputs {
			if _, ok := seen[in]; !ok {
				return apperr.New(apperr.KindValidation, "input %q is not a defined node", in).WithNode(n.ID)
			}
		}
	}
	return nil
}

// checkOperatorsAndParams: step 4.
func checkOperatorsAndParams(p *Plan, reg *registry.Set) error {
	for _, n := range p.Nodes {
		manifest, ok := reg.Manifest[n.Op]
		if !ok {
			return apperr.New(apperr.KindValidation, "unknown operator %q", n.Op).WithNode(n.ID)
		}
		for _, ps := range manifest.Params {
			v, bound := n.Params[ps.Name]
			if ps.Required && !bound {
				return apperr.New(apperr.KindValidation, "missing required param %q", ps.Name).WithNode(n.ID).WithParam(ps.Name)
			}
			if bound && v == nil && !ps.Nullable {
				return apperr.New(apperr.KindValidation, "param %q is not nullable", ps.Name).WithNode(n.ID).WithParam(ps.Name)
			}
			if bound && v != nil {
				if err := checkParamType(ps.Type, v); err != nil {
					return apperr.New(apperr.KindValidation, "param %q: %v", ps.Name, err).WithNode(n.ID).WithParam(ps.Name)
				}
			}
		}
	}
	return nil
}

func checkParamType(t registry.ParamType, v any) error {
	switch t {
	case registry.ParamTypeInt:
		switch v.(type) {
		case int, int64, float64:
			return nil
		}
	case registry.ParamTypeFloat:
		switch v.(type) {
		case float64, int, int64:
			return nil
		}
	case registry.ParamTypeBool:
		if _, ok := v.(bool); ok {
			return nil
		}
	case registry.ParamTypeString:
		if _, ok := v.(string); ok {
			return nil
		}
	}
	return fmt.Errorf("value %v does not match declared type %s", v, t)
}

// checkNoRowIDWrites: step 5 — no node writes the row identifier key,
// and no node writes a key the key registry has deprecated or blocked.
func checkNoRowIDWrites(p *Plan, reg *registry.Set) error {
	for _, n := range p.Nodes {
		manifest := reg.Manifest[n.Op]
		for _, k := range manifest.StaticWrites {
			if k == 1 {
				return apperr.New(apperr.KindValidation, "node writes key id 1 (row identifier)").WithNode(n.ID)
			}
			if def, ok := reg.Keys[k]; ok && def.Lifecycle != "" && def.Lifecycle != registry.LifecycleActive {
				return apperr.New(apperr.KindValidation, "node writes key %q which is %s", def.Name, def.Lifecycle).WithNode(n.ID).WithKey(def.Name)
			}
		}
	}
	return nil
}

// checkCapabilities: step 6.
func checkCapabilities(p *Plan) error {
	required := p.CapabilitiesRequired
	for i := 1; i < len(required); i++ {
		if required[i] <= required[i-1] {
			return apperr.New(apperr.KindValidation, "capabilities_required is not sorted and duplicate-free")
		}
	}
	requiredSet := make(map[string]struct{}, len(required))
	for _, c := range required {
		if !IsKnownCapability(c) {
			return apperr.New(apperr.KindValidation, "unknown capability %q", c)
		}
		requiredSet[c] = struct{}{}
	}
	for capID := range p.Extensions {
		if _, ok := requiredSet[capID]; !ok {
			return apperr.New(apperr.KindValidation, "extension %q not declared in capabilities_required", capID)
		}
	}
	return nil
}

// checkParamOverrides: step 7 — writable, active, type, finite.
func checkParamOverrides(reg *registry.Set, overrides map[string]any) error {
	for name, v := range overrides {
		def, ok := reg.Params[name]
		if !ok {
			return apperr.New(apperr.KindValidation, "unknown parameter override %q", name).WithParam(name)
		}
		if !def.AllowWrite {
			return apperr.New(apperr.KindValidation, "parameter %q does not allow overrides", name).WithParam(name)
		}
		if def.Lifecycle != "" && def.Lifecycle != registry.LifecycleActive {
			return apperr.New(apperr.KindValidation, "parameter %q is %s", name, def.Lifecycle).WithParam(name)
		}
		if v == nil {
			if !def.Nullable {
				return apperr.New(apperr.KindValidation, "parameter %q is not nullable", name).WithParam(name)
			}
			continue
		}
		if err := checkParamType(def.Type, v); err != nil {
			return apperr.New(apperr.KindValidation, "parameter %q: %v", name, err).WithParam(name)
		}
		if f, ok := v.(float64); ok {
			if f != f || f > maxFinite || f < -maxFinite {
				return apperr.New(apperr.KindValidation, "parameter %q is not finite", name).WithParam(name)
			}
		}
	}
	return nil
}

const maxFinite = 1.7976931348623157e+308

// computeEffectiveWrites: step 8 — evaluates writes-effect per node
// against its bound params, unioned with the manifest's static writes.
func computeEffectiveWrites(p *Plan, reg *registry.Set) (EffectiveWrites, error) {
	out := make(EffectiveWrites, len(p.Nodes))
	for _, n := range p.Nodes {
		manifest := reg.Manifest[n.Op]
		result := Result{Kind: Exact, Keys: append([]column.KeyID(nil), manifest.StaticWrites...)}
		if len(manifest.WritesEffect) > 0 {
			effect, err := ParseEffect(manifest.WritesEffect)
			if err != nil {
				return nil, apperr.New(apperr.KindValidation, "writes_effect: %v", err).WithNode(n.ID)
			}
			dyn, err := Eval(effect, n.Params)
			if err != nil {
				return nil, apperr.New(apperr.KindValidation, "writes_effect eval: %v", err).WithNode(n.ID)
			}
			result = combineResults(result, dyn)
		}
		out[n.ID] = result
	}
	return out, nil
}

func combineResults(static Result, dyn Result) Result {
	keys := sortedUnique(append(append([]column.KeyID(nil), static.Keys...), dyn.Keys...))
	kind := Exact
	if dyn.Kind == Unknown {
		kind = Unknown
	} else if dyn.Kind == May {
		kind = May
	}
	return Result{Kind: kind, Keys: keys}
}

// checkEndpointReferences: step 9.
func checkEndpointReferences(p *Plan, reg *registry.Set) error {
	for _, n := range p.Nodes {
		v, ok := n.Params["endpoint"]
		if !ok {
			continue
		}
		epID, ok := v.(string)
		if !ok {
			return apperr.New(apperr.KindValidation, "endpoint param is not a string").WithNode(n.ID)
		}
		if _, ok := reg.Endpoints[epID]; !ok {
			return apperr.New(apperr.KindValidation, "endpoint %q not found in registry", epID).WithNode(n.ID).WithKey(epID)
		}
	}
	return nil
}

