package plan

// KnownCapabilities is the compile-time set of capability ids the
// engine understands, gating what a plan's extensions{} may declare.
var KnownCapabilities = map[string]struct{}{
	"strict_schema":    {},
	"writes_effect.v2": {},
}

// IsKnownCapability reports whether id is one the engine supports.
func IsKnownCapability(id string) bool {
	_, ok := KnownCapabilities[id]
	return ok
}
