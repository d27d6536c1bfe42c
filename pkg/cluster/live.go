package cluster

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/namix-io/reconciler/pkg/utils/kube"
)

const (
	liveReadAttempts = 3
	liveReadDelay    = 200 * time.Millisecond
)

// LiveStateReader resolves the current cluster state for a set of desired
// resources. NotFound is the normal "needs Create" case and simply leaves the
// resource out of the returned map; transient read failures are retried with
// backoff before surfacing.
type LiveStateReader struct {
	cluster Interface
	log     logr.Logger
}

func NewLiveStateReader(cluster Interface, log logr.Logger) *LiveStateReader {
	return &LiveStateReader{cluster: cluster, log: log}
}

// ReadState queries live state for every desired resource identity.
func (r *LiveStateReader) ReadState(ctx context.Context, resources []*unstructured.Unstructured) (map[kube.ResourceKey]*unstructured.Unstructured, error) {
	live := make(map[kube.ResourceKey]*unstructured.Unstructured, len(resources))
	for _, obj := range resources {
		key := kube.GetResourceKey(obj)
		var state *unstructured.Unstructured
		err := retry.Do(
			func() error {
				var getErr error
				state, getErr = r.cluster.Get(ctx, obj.GroupVersionKind(), obj.GetNamespace(), obj.GetName())
				return getErr
			},
			retry.Context(ctx),
			retry.Attempts(liveReadAttempts),
			retry.Delay(liveReadDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(IsReadError),
		)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		live[key] = state
	}
	return live, nil
}

// ReadOwned lists live resources of the given kinds that carry the tracking
// annotation of the application. Used to find prune candidates that are no
// longer part of the desired set. List failures on a single kind degrade to a
// warning so a missing CRD cannot wedge the whole cycle.
func (r *LiveStateReader) ReadOwned(ctx context.Context, gvks []schema.GroupVersionKind, namespace string, app string) ([]*unstructured.Unstructured, error) {
	var owned []*unstructured.Unstructured
	seen := map[schema.GroupVersionKind]bool{}
	for _, gvk := range gvks {
		if seen[gvk] {
			continue
		}
		seen[gvk] = true
		objs, err := r.cluster.ListOwned(ctx, gvk, namespace, app)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			r.log.Info("Failed to list owned resources", "gvk", gvk.String(), "error", err.Error())
			continue
		}
		owned = append(owned, objs...)
	}
	return owned, nil
}
