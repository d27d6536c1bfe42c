package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/namix-io/reconciler/pkg/cluster"
	"github.com/namix-io/reconciler/pkg/diff"
	"github.com/namix-io/reconciler/pkg/registry"
	"github.com/namix-io/reconciler/pkg/sync/common"
	"github.com/namix-io/reconciler/pkg/utils/kube"
	testingutils "github.com/namix-io/reconciler/pkg/utils/testing"
)

// fakeCluster records operations and can be programmed to fail per resource.
type fakeCluster struct {
	mu        sync.Mutex
	objects   map[kube.ResourceKey]*unstructured.Unstructured
	applied   []string
	deleted   []string
	failWith  map[string]error
	failTimes map[string]int
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		objects:   map[kube.ResourceKey]*unstructured.Unstructured{},
		failWith:  map[string]error{},
		failTimes: map[string]int{},
	}
}

func (f *fakeCluster) Get(ctx context.Context, gvk schema.GroupVersionKind, namespace string, name string) (*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[kube.NewResourceKey(gvk.Group, gvk.Kind, namespace, name)]
	if !ok {
		return nil, apierrors.NewNotFound(schema.GroupResource{Group: gvk.Group, Resource: gvk.Kind}, name)
	}
	return obj.DeepCopy(), nil
}

func (f *fakeCluster) Apply(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := obj.GetName()
	if err, ok := f.failWith[name]; ok {
		if remaining := f.failTimes[name]; remaining != 0 {
			if remaining > 0 {
				f.failTimes[name] = remaining - 1
			}
			return nil, err
		}
	}
	f.applied = append(f.applied, name)
	f.objects[kube.GetResourceKey(obj)] = obj.DeepCopy()
	return obj.DeepCopy(), nil
}

func (f *fakeCluster) Delete(ctx context.Context, gvk schema.GroupVersionKind, namespace string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWith[name]; ok {
		return err
	}
	f.deleted = append(f.deleted, name)
	delete(f.objects, kube.NewResourceKey(gvk.Group, gvk.Kind, namespace, name))
	return nil
}

func (f *fakeCluster) ListOwned(ctx context.Context, gvk schema.GroupVersionKind, namespace string, app string) ([]*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owned []*unstructured.Unstructured
	for key, obj := range f.objects {
		if key.Kind == gvk.Kind && key.Group == gvk.Group && kube.GetAppInstance(obj) == app {
			owned = append(owned, obj.DeepCopy())
		}
	}
	return owned, nil
}

func createDiffs(objs ...*unstructured.Unstructured) *diff.Result {
	result := &diff.Result{Modified: true}
	for _, obj := range objs {
		result.Diffs = append(result.Diffs, diff.ResourceDiff{
			Key: kube.GetResourceKey(obj), Type: diff.ResultTypeCreate, Target: obj,
		})
	}
	return result
}

func TestExecutor_AllSucceed(t *testing.T) {
	fake := newFakeCluster()
	executor := NewExecutor(fake, registry.SyncPolicy{Automated: true})

	result := createDiffs(testingutils.NewDeployment("web", 2), testingutils.NewService("web-svc"))
	state := executor.Sync(context.Background(), result, "rev1")

	assert.Equal(t, common.OperationSucceeded, state.Phase)
	assert.Equal(t, "rev1", state.Revision)
	require.Len(t, state.Results, 2)
	// service applies before deployment per kind order
	assert.Equal(t, []string{"web-svc", "web"}, fake.applied)
	assert.NotEmpty(t, state.ID)
	assert.False(t, state.FinishedAt.IsZero())
}

func TestExecutor_PartialFailureIsolation(t *testing.T) {
	// B fails validation while A and C succeed: operation is PartiallyFailed
	// and A and C are applied
	fake := newFakeCluster()
	fake.failWith["b"] = &cluster.ValidationRejected{Err: fmt.Errorf("schema rejected")}
	fake.failTimes["b"] = -1
	executor := NewExecutor(fake, registry.SyncPolicy{Automated: true})

	result := createDiffs(
		testingutils.NewService("a"),
		testingutils.NewService("b"),
		testingutils.NewService("c"),
	)
	state := executor.Sync(context.Background(), result, "rev1")

	assert.Equal(t, common.OperationPartiallyFailed, state.Phase)
	assert.ElementsMatch(t, []string{"a", "c"}, fake.applied)
	for _, res := range state.Results {
		if res.ResourceKey.Name == "b" {
			assert.Equal(t, common.ResultCodeSyncFailed, res.Code)
		} else {
			assert.Equal(t, common.ResultCodeSynced, res.Code)
		}
	}
}

func TestExecutor_TransientErrorRetried(t *testing.T) {
	fake := newFakeCluster()
	fake.failWith["web-svc"] = &cluster.ReadError{Err: fmt.Errorf("connection reset")}
	fake.failTimes["web-svc"] = 2
	executor := NewExecutor(fake, registry.SyncPolicy{Automated: true})

	state := executor.Sync(context.Background(), createDiffs(testingutils.NewService("web-svc")), "rev1")

	assert.Equal(t, common.OperationSucceeded, state.Phase)
	assert.Equal(t, []string{"web-svc"}, fake.applied)
}

func TestExecutor_PruneSafety(t *testing.T) {
	// prune=false: no delete is ever issued regardless of diff output
	fake := newFakeCluster()
	orphan := testingutils.NewService("stale")
	result := &diff.Result{
		Modified: true,
		Diffs: []diff.ResourceDiff{
			{Key: kube.GetResourceKey(orphan), Type: diff.ResultTypeDelete, Live: orphan},
		},
	}

	executor := NewExecutor(fake, registry.SyncPolicy{Automated: true, Prune: false})
	state := executor.Sync(context.Background(), result, "rev1")

	assert.Equal(t, common.OperationSucceeded, state.Phase)
	assert.Empty(t, fake.deleted)
	require.Len(t, state.Results, 1)
	assert.Equal(t, common.ResultCodePruneSkipped, state.Results[0].Code)
}

func TestExecutor_PruneRequiresAutomated(t *testing.T) {
	// prune=true without automated must still not delete
	fake := newFakeCluster()
	orphan := testingutils.NewService("stale")
	result := &diff.Result{
		Modified: true,
		Diffs:    []diff.ResourceDiff{{Key: kube.GetResourceKey(orphan), Type: diff.ResultTypeDelete, Live: orphan}},
	}

	executor := NewExecutor(fake, registry.SyncPolicy{Automated: false, Prune: true})
	state := executor.Sync(context.Background(), result, "rev1")

	assert.Empty(t, fake.deleted)
	assert.Equal(t, common.ResultCodePruneSkipped, state.Results[0].Code)
}

func TestExecutor_PruneWhenAllowed(t *testing.T) {
	fake := newFakeCluster()
	orphan := testingutils.NewService("stale")
	fake.objects[kube.GetResourceKey(orphan)] = orphan
	result := &diff.Result{
		Modified: true,
		Diffs: []diff.ResourceDiff{
			{Key: kube.GetResourceKey(testingutils.NewService("web-svc")), Type: diff.ResultTypeCreate, Target: testingutils.NewService("web-svc")},
			{Key: kube.GetResourceKey(orphan), Type: diff.ResultTypeDelete, Live: orphan},
		},
	}

	executor := NewExecutor(fake, registry.SyncPolicy{Automated: true, Prune: true})
	state := executor.Sync(context.Background(), result, "rev1")

	assert.Equal(t, common.OperationSucceeded, state.Phase)
	assert.Equal(t, []string{"stale"}, fake.deleted)
	// deletes run after applies
	assert.Equal(t, []string{"web-svc"}, fake.applied)
}

func TestExecutor_Cancellation(t *testing.T) {
	fake := newFakeCluster()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := NewExecutor(fake, registry.SyncPolicy{Automated: true})
	state := executor.Sync(ctx, createDiffs(testingutils.NewService("web-svc")), "rev1")

	assert.Equal(t, common.OperationCancelled, state.Phase)
	assert.Empty(t, fake.applied)
	require.Len(t, state.Results, 1)
	assert.Equal(t, common.ResultCodeSkipped, state.Results[0].Code)
}

func TestExecutor_InSyncProducesNoTasks(t *testing.T) {
	fake := newFakeCluster()
	obj := testingutils.NewService("web-svc")
	result := &diff.Result{
		Diffs: []diff.ResourceDiff{{Key: kube.GetResourceKey(obj), Type: diff.ResultTypeInSync, Target: obj, Live: obj}},
	}

	executor := NewExecutor(fake, registry.SyncPolicy{Automated: true})
	state := executor.Sync(context.Background(), result, "rev1")

	assert.Equal(t, common.OperationSucceeded, state.Phase)
	assert.Empty(t, state.Results)
	assert.Empty(t, fake.applied)
}
