package plan

import (
	"encoding/json"
	"fmt"

	"github.com/smilemakc/dagengine/internal/registry"
)

// Digests are the two content digests the CLI prints for
// --print-registry, both canonical-JSON SHA-256.
type Digests struct {
	TaskManifestDigest       string
	CapabilityRegistryDigest string
}

// ComputeDigests computes the task-manifest and capability-registry
// digests from the loaded registry set.
func ComputeDigests(reg *registry.Set) (Digests, error) {
	manifestDigest, err := registry.CanonicalDigest(reg.Manifest)
	if err != nil {
		return Digests{}, fmt.Errorf("task manifest digest: %w", err)
	}
	capsDigest, err := registry.CanonicalDigest(KnownCapabilities)
	if err != nil {
		return Digests{}, fmt.Errorf("capability registry digest: %w", err)
	}
	return Digests{TaskManifestDigest: manifestDigest, CapabilityRegistryDigest: capsDigest}, nil
}

// ArtifactDigest computes the sha256 of a plan artifact's canonical JSON
// form (keys sorted, no whitespace), as required for the plan store's
// index.json digests.
func ArtifactDigest(rawArtifactJSON []byte) (string, error) {
	var v any
	if err := json.Unmarshal(rawArtifactJSON, &v); err != nil {
		return "", fmt.Errorf("parse plan artifact: %w", err)
	}
	return registry.CanonicalDigest(v)
}
