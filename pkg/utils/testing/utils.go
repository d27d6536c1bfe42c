package testing

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

// Unstructured parses a YAML document into an unstructured object, panicking
// on malformed input. Test helper only.
func Unstructured(text string) *unstructured.Unstructured {
	un := &unstructured.Unstructured{}
	if err := yaml.Unmarshal([]byte(text), &un.Object); err != nil {
		panic(fmt.Sprintf("failed to parse test manifest: %v", err))
	}
	return un
}

func NewPod() *unstructured.Unstructured {
	return Unstructured(`
apiVersion: v1
kind: Pod
metadata:
  name: my-pod
  namespace: default
spec:
  containers:
  - name: main
    image: nginx:1.25
`)
}

func NewService(name string) *unstructured.Unstructured {
	return Unstructured(fmt.Sprintf(`
apiVersion: v1
kind: Service
metadata:
  name: %s
  namespace: default
spec:
  ports:
  - port: 80
`, name))
}

func NewDeployment(name string, replicas int) *unstructured.Unstructured {
	return Unstructured(fmt.Sprintf(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: %s
  namespace: default
spec:
  replicas: %d
  selector:
    matchLabels:
      app: %s
  template:
    metadata:
      labels:
        app: %s
    spec:
      containers:
      - name: main
        image: nginx:1.25
`, name, replicas, name, name))
}

func NewNamespace(name string) *unstructured.Unstructured {
	return Unstructured(fmt.Sprintf(`
apiVersion: v1
kind: Namespace
metadata:
  name: %s
`, name))
}

func NewCRD() *unstructured.Unstructured {
	return Unstructured(`
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: widgets.example.com
spec:
  group: example.com
  names:
    kind: Widget
    plural: widgets
  scope: Namespaced
`)
}

func NewCustomResource() *unstructured.Unstructured {
	return Unstructured(`
apiVersion: example.com/v1
kind: Widget
metadata:
  name: my-widget
  namespace: default
spec:
  size: 1
`)
}

// Annotate sets one annotation and returns the same object for chaining.
func Annotate(un *unstructured.Unstructured, key string, value string) *unstructured.Unstructured {
	annotations := un.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[key] = value
	un.SetAnnotations(annotations)
	return un
}
