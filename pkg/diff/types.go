package diff

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/namix-io/reconciler/pkg/utils/kube"
)

// ResultType classifies a single resource comparison.
type ResultType string

const (
	ResultTypeInSync ResultType = "InSync"
	ResultTypeCreate ResultType = "Create"
	ResultTypeUpdate ResultType = "Update"
	// ResultTypeDelete marks a live resource owned by the application but
	// absent from the desired set. Only the executor turns it into an actual
	// deletion, and only when pruning is allowed by policy.
	ResultTypeDelete  ResultType = "Delete"
	ResultTypeUnknown ResultType = "Unknown"
)

// ResourceDiff is the comparison outcome for one resource identity.
type ResourceDiff struct {
	Key  kube.ResourceKey
	Type ResultType
	// Patch is the minimal merge patch that brings live to desired, only set
	// for Update.
	Patch []byte
	// Target is the desired object, nil for Delete.
	Target *unstructured.Unstructured
	// Live is the observed object, nil for Create.
	Live *unstructured.Unstructured
	// Message explains an Unknown classification.
	Message string
}

// Result is the full diff of one reconciliation cycle.
type Result struct {
	Diffs []ResourceDiff
	// Modified is true if any resource is not InSync.
	Modified bool
}

// ByType returns the diffs matching any of the given types, preserving order.
func (r *Result) ByType(types ...ResultType) []ResourceDiff {
	var out []ResourceDiff
	for _, d := range r.Diffs {
		for _, t := range types {
			if d.Type == t {
				out = append(out, d)
				break
			}
		}
	}
	return out
}
