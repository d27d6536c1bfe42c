package render

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	"github.com/namix-io/reconciler/pkg/source"
	"github.com/namix-io/reconciler/pkg/utils/kube"
)

// RenderError reports a malformed template or manifest together with the
// offending document path.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("RenderError: %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

func IsRenderError(err error) bool {
	var renderErr *RenderError
	return errors.As(err, &renderErr)
}

// ManifestSet is the immutable, ordered output of one fetch+render pass,
// tagged with the revision it was derived from. Owned exclusively by the
// reconciliation cycle that produced it.
type ManifestSet struct {
	Revision  string
	Resources []*unstructured.Unstructured
}

// Keys returns the resource identities of the set in order.
func (m *ManifestSet) Keys() []kube.ResourceKey {
	keys := make([]kube.ResourceKey, 0, len(m.Resources))
	for _, obj := range m.Resources {
		keys = append(keys, kube.GetResourceKey(obj))
	}
	return keys
}

// Input carries the per-Application context a render needs.
type Input struct {
	// AppName is stamped on every rendered resource for drift attribution.
	AppName string
	// Namespace is applied to namespaced resources that declare none.
	Namespace string
	// Params are exposed to templates as {{ .Values.<key> }}.
	Params map[string]string
}

// Render expands template directives in each document and parses the results
// into a flat resource set. Deterministic: identical input always yields an
// identical set, so diffs are stable across cycles. Side-effect free.
func Render(bundle *source.Bundle, in Input) (*ManifestSet, error) {
	set := &ManifestSet{Revision: bundle.Revision}
	for _, doc := range bundle.Documents {
		expanded, err := expand(doc, in.Params)
		if err != nil {
			return nil, err
		}
		objs, err := splitDocuments(doc.Path, expanded)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			kube.SetAppInstance(obj, in.AppName)
			if obj.GetNamespace() == "" && in.Namespace != "" && isNamespaced(obj) {
				obj.SetNamespace(in.Namespace)
			}
			set.Resources = append(set.Resources, obj)
		}
	}
	return set, nil
}

func expand(doc source.Document, params map[string]string) ([]byte, error) {
	if !bytes.Contains(doc.Data, []byte("{{")) {
		return doc.Data, nil
	}
	tmpl, err := template.New(doc.Path).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(string(doc.Data))
	if err != nil {
		return nil, &RenderError{Path: doc.Path, Err: err}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{"Values": params}); err != nil {
		return nil, &RenderError{Path: doc.Path, Err: err}
	}
	return buf.Bytes(), nil
}

// splitDocuments cuts a multi-document stream on real separator lines only, so
// column-0 content that merely starts with "---" cannot corrupt a document.
func splitDocuments(path string, data []byte) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(data)))
	var objs []*unstructured.Unstructured
	for {
		chunk, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &RenderError{Path: path, Err: err}
		}
		if len(bytes.TrimSpace(chunk)) == 0 {
			continue
		}
		obj := &unstructured.Unstructured{}
		if err := yaml.Unmarshal(chunk, &obj.Object); err != nil {
			return nil, &RenderError{Path: path, Err: err}
		}
		if obj.Object == nil {
			continue
		}
		if obj.GetKind() == "" || obj.GetName() == "" {
			return nil, &RenderError{Path: path, Err: fmt.Errorf("object missing kind or name")}
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// clusterScopedKinds covers the kinds this controller manages that must not
// receive a default namespace. CRDs declare their own scope, which the diff
// tolerates either way.
var clusterScopedKinds = map[string]bool{
	kube.NamespaceKind:                true,
	kube.CustomResourceDefinitionKind: true,
	"ClusterRole":                     true,
	"ClusterRoleBinding":              true,
	"StorageClass":                    true,
	"PersistentVolume":                true,
	"PriorityClass":                   true,
	"IngressClass":                    true,
	"APIService":                      true,
}

func isNamespaced(obj *unstructured.Unstructured) bool {
	return !clusterScopedKinds[obj.GetKind()]
}
