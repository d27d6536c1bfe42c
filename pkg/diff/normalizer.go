package diff

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Normalizer updates resource before comparing it
type Normalizer interface {
	Normalize(un *unstructured.Unstructured) error
}

type noopNormalizer struct{}

func (n *noopNormalizer) Normalize(un *unstructured.Unstructured) error {
	return nil
}

// GetNoopNormalizer returns normalizer that does not apply any resource modifications
func GetNoopNormalizer() Normalizer {
	return &noopNormalizer{}
}

// IgnoreRule excludes fields from comparison for matching resources. Empty
// Group, Kind or Name fields match any value.
type IgnoreRule struct {
	Group string
	Kind  string
	Name  string
	// FieldPaths are dot separated paths into the object, e.g. "spec.replicas".
	FieldPaths []string
}

func (r IgnoreRule) matches(un *unstructured.Unstructured) bool {
	return (r.Group == "" || r.Group == un.GroupVersionKind().Group) &&
		(r.Kind == "" || r.Kind == un.GetKind()) &&
		(r.Name == "" || r.Name == un.GetName())
}

type ignoreNormalizer struct {
	rules []IgnoreRule
}

// NewIgnoreNormalizer returns a normalizer that drops the fields named by the
// matching rules before comparison.
func NewIgnoreNormalizer(rules []IgnoreRule) Normalizer {
	return &ignoreNormalizer{rules: rules}
}

func (n *ignoreNormalizer) Normalize(un *unstructured.Unstructured) error {
	if un == nil {
		return nil
	}
	for _, rule := range n.rules {
		if !rule.matches(un) {
			continue
		}
		for _, path := range rule.FieldPaths {
			unstructured.RemoveNestedField(un.Object, strings.Split(path, ".")...)
		}
	}
	return nil
}

// stripServerFields removes status and server-assigned metadata so that only
// operator-declared state takes part in the comparison.
func stripServerFields(un *unstructured.Unstructured) {
	unstructured.RemoveNestedField(un.Object, "status")
	un.SetManagedFields(nil)
	unstructured.RemoveNestedField(un.Object, "metadata", "managedFields")
	unstructured.RemoveNestedField(un.Object, "metadata", "uid")
	unstructured.RemoveNestedField(un.Object, "metadata", "resourceVersion")
	unstructured.RemoveNestedField(un.Object, "metadata", "generation")
	unstructured.RemoveNestedField(un.Object, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(un.Object, "metadata", "selfLink")
	annotations := un.GetAnnotations()
	delete(annotations, "kubectl.kubernetes.io/last-applied-configuration")
	if len(annotations) == 0 {
		annotations = nil
	}
	un.SetAnnotations(annotations)
}
