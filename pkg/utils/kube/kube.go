package kube

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	NamespaceKind                = "Namespace"
	CustomResourceDefinitionKind = "CustomResourceDefinition"

	// TrackingAnnotation records the Application that owns a resource. It is
	// stamped on every rendered object and is the sole basis for drift
	// attribution and pruning.
	TrackingAnnotation = "reconciler.namix.io/application"
)

// ResourceKey is the unique identity of a resource within a cluster.
type ResourceKey struct {
	Group     string
	Kind      string
	Namespace string
	Name      string
}

func (k ResourceKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Group, k.Kind, k.Namespace, k.Name)
}

func (k ResourceKey) GroupKind() schema.GroupKind {
	return schema.GroupKind{Group: k.Group, Kind: k.Kind}
}

func NewResourceKey(group string, kind string, namespace string, name string) ResourceKey {
	return ResourceKey{Group: group, Kind: kind, Namespace: namespace, Name: name}
}

func GetResourceKey(obj *unstructured.Unstructured) ResourceKey {
	gvk := obj.GroupVersionKind()
	return NewResourceKey(gvk.Group, gvk.Kind, obj.GetNamespace(), obj.GetName())
}

// GetAppInstance returns the name of the Application that owns the object, or
// "" if the object carries no tracking annotation.
func GetAppInstance(obj *unstructured.Unstructured) string {
	return obj.GetAnnotations()[TrackingAnnotation]
}

// SetAppInstance stamps the owning Application name onto the object.
func SetAppInstance(obj *unstructured.Unstructured, app string) {
	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[TrackingAnnotation] = app
	obj.SetAnnotations(annotations)
}

func IsCRD(obj *unstructured.Unstructured) bool {
	return isCRDGroupVersionKind(obj.GroupVersionKind())
}

func isCRDGroupVersionKind(gvk schema.GroupVersionKind) bool {
	return gvk.Kind == CustomResourceDefinitionKind && gvk.Group == "apiextensions.k8s.io"
}

// IsCRDOfGroupKind returns true if obj is the CustomResourceDefinition that
// serves the given group/kind.
func IsCRDOfGroupKind(group string, kind string, obj *unstructured.Unstructured) bool {
	if !IsCRD(obj) {
		return false
	}
	crdGroup, _, err := unstructured.NestedString(obj.Object, "spec", "group")
	if err != nil {
		return false
	}
	crdKind, _, err := unstructured.NestedString(obj.Object, "spec", "names", "kind")
	if err != nil {
		return false
	}
	return crdGroup == group && crdKind == kind
}

// ResourceNameFromKind derives the lowercase plural REST resource name for a
// kind. Used when no RESTMapper is available (tests, static mapping).
func ResourceNameFromKind(kind string) string {
	name := strings.ToLower(kind)
	switch {
	case strings.HasSuffix(name, "ss"):
		return name + "es"
	case strings.HasSuffix(name, "cy"):
		return strings.TrimSuffix(name, "y") + "ies"
	default:
		return name + "s"
	}
}
