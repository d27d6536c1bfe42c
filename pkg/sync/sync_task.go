package sync

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/namix-io/reconciler/pkg/diff"
	"github.com/namix-io/reconciler/pkg/sync/common"
	"github.com/namix-io/reconciler/pkg/utils/kube"
)

const (
	// SyncWaveAnnotation orders tasks within the apply phase, lower waves run
	// first. Unannotated resources are wave 0.
	SyncWaveAnnotation = "reconciler.namix.io/sync-wave"
	// DependsOnAnnotation declares explicit dependency edges as a comma
	// separated list of [group/]Kind/[namespace/]name references.
	DependsOnAnnotation = "reconciler.namix.io/depends-on"
)

// syncTask is one resource operation within a sync: an apply of the target
// object or a prune of the live object.
type syncTask struct {
	targetObj *unstructured.Unstructured
	liveObj   *unstructured.Unstructured
	diffType  diff.ResultType

	code    common.ResultCode
	message string
}

func (t *syncTask) obj() *unstructured.Unstructured {
	if t.targetObj != nil {
		return t.targetObj
	}
	return t.liveObj
}

func (t *syncTask) resourceKey() kube.ResourceKey {
	return kube.GetResourceKey(t.obj())
}

func (t *syncTask) name() string {
	return t.obj().GetName()
}

func (t *syncTask) isPrune() bool {
	return t.diffType == diff.ResultTypeDelete
}

func (t *syncTask) wave() int {
	val, ok := t.obj().GetAnnotations()[SyncWaveAnnotation]
	if !ok {
		return 0
	}
	wave, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return wave
}

func (t *syncTask) dependencies() []taskDependency {
	val, ok := t.obj().GetAnnotations()[DependsOnAnnotation]
	if !ok {
		return nil
	}
	var deps []taskDependency
	for _, ref := range strings.Split(val, ",") {
		dep, err := parseDependency(strings.TrimSpace(ref))
		if err != nil {
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

func (t *syncTask) String() string {
	return fmt.Sprintf("%s/%s (%s)", t.obj().GetKind(), t.name(), t.diffType)
}

// taskDependency is one declared edge, empty fields act as wildcards.
type taskDependency struct {
	Group     string
	Kind      string
	Namespace string
	Name      string
}

// match returns true if the given object matches the dependency
func (d taskDependency) match(obj *unstructured.Unstructured) bool {
	return (obj.GetKind() == d.Kind || d.Kind == "") &&
		(obj.GroupVersionKind().Group == d.Group || d.Group == "") &&
		(obj.GetNamespace() == d.Namespace || d.Namespace == "") &&
		(obj.GetName() == d.Name || d.Name == "")
}

// parseDependency reads [group/]Kind/[namespace/]name. Two segments mean
// Kind/name, three mean Kind/namespace/name, four carry the group too.
func parseDependency(ref string) (taskDependency, error) {
	parts := strings.Split(ref, "/")
	switch len(parts) {
	case 2:
		return taskDependency{Kind: parts[0], Name: parts[1]}, nil
	case 3:
		return taskDependency{Kind: parts[0], Namespace: parts[1], Name: parts[2]}, nil
	case 4:
		return taskDependency{Group: parts[0], Kind: parts[1], Namespace: parts[2], Name: parts[3]}, nil
	}
	return taskDependency{}, fmt.Errorf("invalid dependency reference %q", ref)
}
