package diff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	jsonpatch "github.com/evanphx/json-patch"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	utiljson "github.com/namix-io/reconciler/pkg/utils/json"
	"github.com/namix-io/reconciler/pkg/utils/kube"
)

// Diff classifies a single desired/live pair. live == nil means the resource
// does not exist yet. The classification is a pure function of
// (target, live, normalizer): no hidden state, no dependence on call order.
func Diff(target *unstructured.Unstructured, live *unstructured.Unstructured, opts ...Option) (*ResourceDiff, error) {
	o := applyOptions(opts)
	key := kube.GetResourceKey(target)
	if live == nil {
		return &ResourceDiff{Key: key, Type: ResultTypeCreate, Target: target}, nil
	}

	config, pruned, err := normalizePair(target, live, o.normalizer)
	if err != nil {
		return &ResourceDiff{Key: key, Type: ResultTypeUnknown, Target: target, Live: live, Message: err.Error()}, nil
	}
	if semanticEqual(config.Object, pruned.Object) {
		return &ResourceDiff{Key: key, Type: ResultTypeInSync, Target: target, Live: live}, nil
	}
	patch, err := mergePatch(pruned, config)
	if err != nil {
		return nil, fmt.Errorf("failed to compute patch for %s: %w", key, err)
	}
	return &ResourceDiff{Key: key, Type: ResultTypeUpdate, Patch: patch, Target: target, Live: live}, nil
}

// DiffSet classifies every desired resource against the live map and turns
// live objects absent from the desired set into Delete candidates. ownedLive
// holds live objects attributed to the application by the tracking
// annotation.
func DiffSet(targets []*unstructured.Unstructured, live map[kube.ResourceKey]*unstructured.Unstructured, ownedLive []*unstructured.Unstructured, opts ...Option) (*Result, error) {
	o := applyOptions(opts)
	result := &Result{}
	desired := map[kube.ResourceKey]bool{}

	for _, target := range targets {
		key := kube.GetResourceKey(target)
		desired[key] = true
		d, err := Diff(target, live[key], opts...)
		if err != nil {
			return nil, err
		}
		result.Diffs = append(result.Diffs, *d)
		if d.Type != ResultTypeInSync {
			result.Modified = true
		}
	}

	// delete candidates are sorted by key so the result does not depend on
	// the traversal order of the live query
	var orphans []ResourceDiff
	seen := map[kube.ResourceKey]bool{}
	for _, obj := range ownedLive {
		key := kube.GetResourceKey(obj)
		if desired[key] || seen[key] {
			continue
		}
		seen[key] = true
		orphans = append(orphans, ResourceDiff{Key: key, Type: ResultTypeDelete, Live: obj})
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Key.String() < orphans[j].Key.String() })
	if len(orphans) > 0 {
		result.Modified = true
		result.Diffs = append(result.Diffs, orphans...)
	}

	o.log.V(1).Info("Computed diff", "resources", len(result.Diffs), "modified", result.Modified)
	return result, nil
}

// normalizePair produces the comparable forms of desired and live: the
// normalizer and server-field stripping applied to both, and the live object
// reduced to the fields present in the desired config so that defaulted
// server-side fields do not show up as drift.
func normalizePair(target *unstructured.Unstructured, live *unstructured.Unstructured, normalizer Normalizer) (*unstructured.Unstructured, *unstructured.Unstructured, error) {
	config := target.DeepCopy()
	liveCopy := live.DeepCopy()
	stripServerFields(config)
	stripServerFields(liveCopy)
	if err := normalizer.Normalize(config); err != nil {
		return nil, nil, err
	}
	if err := normalizer.Normalize(liveCopy); err != nil {
		return nil, nil, err
	}
	pruned := &unstructured.Unstructured{Object: utiljson.RemoveMapFields(config.Object, liveCopy.Object)}
	return config, pruned, nil
}

func mergePatch(live *unstructured.Unstructured, config *unstructured.Unstructured) ([]byte, error) {
	liveData, err := json.Marshal(live.Object)
	if err != nil {
		return nil, err
	}
	configData, err := json.Marshal(config.Object)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(liveData, configData)
}

// semanticEqual compares two manifest trees treating numerically equal values
// as identical regardless of representation, so "2" vs 2 and 2.0 vs 2 never
// flap the diff.
func semanticEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v1 := range av {
			v2, ok := bv[k]
			if !ok || !semanticEqual(v1, v2) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !semanticEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		if a == b {
			return true
		}
		an, aok := asNumber(a)
		bn, bok := asNumber(b)
		return aok && bok && an == bn
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case bool:
		return 0, false
	default:
		return 0, false
	}
}
