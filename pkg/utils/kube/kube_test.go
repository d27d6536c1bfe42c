package kube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func deployment() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]any{
			"name":      "web",
			"namespace": "dev",
		},
	}}
}

func TestGetResourceKey(t *testing.T) {
	key := GetResourceKey(deployment())
	assert.Equal(t, ResourceKey{Group: "apps", Kind: "Deployment", Namespace: "dev", Name: "web"}, key)
	assert.Equal(t, "apps/Deployment/dev/web", key.String())
}

func TestAppInstanceTracking(t *testing.T) {
	obj := deployment()
	assert.Empty(t, GetAppInstance(obj))
	SetAppInstance(obj, "web-dev")
	assert.Equal(t, "web-dev", GetAppInstance(obj))
}

func TestIsCRDOfGroupKind(t *testing.T) {
	crd := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "apiextensions.k8s.io/v1",
		"kind":       "CustomResourceDefinition",
		"metadata":   map[string]any{"name": "widgets.example.com"},
		"spec": map[string]any{
			"group": "example.com",
			"names": map[string]any{"kind": "Widget"},
		},
	}}
	assert.True(t, IsCRD(crd))
	assert.True(t, IsCRDOfGroupKind("example.com", "Widget", crd))
	assert.False(t, IsCRDOfGroupKind("example.com", "Gadget", crd))
	assert.False(t, IsCRDOfGroupKind("other.com", "Widget", crd))
	assert.False(t, IsCRDOfGroupKind("example.com", "Widget", deployment()))
}

func TestResourceNameFromKind(t *testing.T) {
	assert.Equal(t, "deployments", ResourceNameFromKind("Deployment"))
	assert.Equal(t, "ingresses", ResourceNameFromKind("Ingress"))
	assert.Equal(t, "networkpolicies", ResourceNameFromKind("NetworkPolicy"))
}
