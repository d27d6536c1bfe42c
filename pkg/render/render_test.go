package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/namix-io/reconciler/pkg/source"
	"github.com/namix-io/reconciler/pkg/utils/kube"
)

func bundleOf(docs ...source.Document) *source.Bundle {
	return &source.Bundle{Revision: "abc123", Documents: docs}
}

func TestRender_PlainManifest(t *testing.T) {
	set, err := Render(bundleOf(source.Document{Path: "cm.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: settings
data:
  a: b
`)}), Input{AppName: "web-dev", Namespace: "dev"})
	require.NoError(t, err)
	require.Len(t, set.Resources, 1)
	assert.Equal(t, "abc123", set.Revision)

	obj := set.Resources[0]
	assert.Equal(t, "web-dev", kube.GetAppInstance(obj))
	assert.Equal(t, "dev", obj.GetNamespace())
}

func TestRender_MultiDocument(t *testing.T) {
	set, err := Render(bundleOf(source.Document{Path: "all.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: first
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: second
`)}), Input{AppName: "web-dev", Namespace: "dev"})
	require.NoError(t, err)
	require.Len(t, set.Resources, 2)
	assert.Equal(t, "first", set.Resources[0].GetName())
	assert.Equal(t, "second", set.Resources[1].GetName())
}

func TestRender_SeparatorWithTrailingComment(t *testing.T) {
	set, err := Render(bundleOf(source.Document{Path: "all.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: first
--- # second part
apiVersion: v1
kind: ConfigMap
metadata:
  name: second
`)}), Input{AppName: "web-dev", Namespace: "dev"})
	require.NoError(t, err)
	require.Len(t, set.Resources, 2)
	assert.Equal(t, "first", set.Resources[0].GetName())
	assert.Equal(t, "second", set.Resources[1].GetName())
}

func TestRender_SeparatorLookalikeRejected(t *testing.T) {
	// a column-0 line that merely starts with "---" is not a separator and
	// must not silently cut the document
	_, err := Render(bundleOf(source.Document{Path: "all.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: first
---x: not-a-separator
`)}), Input{AppName: "web-dev", Namespace: "dev"})
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
	assert.Contains(t, err.Error(), "all.yaml")
}

func TestRender_TemplateExpansion(t *testing.T) {
	set, err := Render(bundleOf(source.Document{Path: "cm.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .Values.name }}
data:
  upper: {{ upper .Values.name }}
`)}), Input{AppName: "web-dev", Namespace: "dev", Params: map[string]string{"name": "settings"}})
	require.NoError(t, err)
	require.Len(t, set.Resources, 1)
	assert.Equal(t, "settings", set.Resources[0].GetName())
	val, _, _ := unstructured.NestedString(set.Resources[0].Object, "data", "upper")
	assert.Equal(t, "SETTINGS", val)
}

func TestRender_Deterministic(t *testing.T) {
	doc := source.Document{Path: "cm.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .Values.name }}
`)}
	in := Input{AppName: "web-dev", Namespace: "dev", Params: map[string]string{"name": "settings"}}
	first, err := Render(bundleOf(doc), in)
	require.NoError(t, err)
	second, err := Render(bundleOf(doc), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_MalformedTemplate(t *testing.T) {
	_, err := Render(bundleOf(source.Document{Path: "bad.yaml", Data: []byte(`name: {{ .Values.name`)}), Input{AppName: "a"})
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestRender_MissingParam(t *testing.T) {
	_, err := Render(bundleOf(source.Document{Path: "cm.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: {{ .Values.missing }}
`)}), Input{AppName: "a", Params: map[string]string{}})
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
}

func TestRender_MissingKindRejected(t *testing.T) {
	_, err := Render(bundleOf(source.Document{Path: "bad.yaml", Data: []byte(`
metadata:
  name: incomplete
`)}), Input{AppName: "a"})
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
}

func TestRender_ClusterScopedKeepsNoNamespace(t *testing.T) {
	set, err := Render(bundleOf(source.Document{Path: "ns.yaml", Data: []byte(`
apiVersion: v1
kind: Namespace
metadata:
  name: dev
`)}), Input{AppName: "web-dev", Namespace: "dev"})
	require.NoError(t, err)
	require.Len(t, set.Resources, 1)
	assert.Empty(t, set.Resources[0].GetNamespace())
}

func TestRender_ExplicitNamespaceKept(t *testing.T) {
	set, err := Render(bundleOf(source.Document{Path: "cm.yaml", Data: []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: settings
  namespace: explicit
`)}), Input{AppName: "web-dev", Namespace: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", set.Resources[0].GetNamespace())
}
