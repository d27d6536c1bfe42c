package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/namix-io/reconciler/pkg/cluster"
	"github.com/namix-io/reconciler/pkg/diff"
	"github.com/namix-io/reconciler/pkg/health"
	"github.com/namix-io/reconciler/pkg/registry"
	"github.com/namix-io/reconciler/pkg/render"
	"github.com/namix-io/reconciler/pkg/sync"
	"github.com/namix-io/reconciler/pkg/sync/common"
	"github.com/namix-io/reconciler/pkg/utils/kube"
)

// timeoutMessage is the uniform cause recorded whenever a cycle runs out of
// its wall-clock budget, regardless of which phase the budget expired in.
const timeoutMessage = "Timeout: cycle exceeded wall-clock budget"

// runCycle executes one full reconciliation pass:
// Fetching -> Diffing -> Syncing -> Idle, with Degraded entered on repeated
// consecutive failures. Status is written back before every return so no
// failure is silent.
func (e *Engine) runCycle(ctx context.Context, worker *appWorker, reason TriggerReason) {
	app, err := e.registry.Get(worker.name)
	if err != nil {
		// deregistered while the trigger was pending
		return
	}
	log := e.log.WithValues("application", app.Name, "trigger", string(reason))
	span := e.tracer.StartSpan("reconcile")
	span.SetBaggageItem("application", app.Name)
	defer span.Finish()

	cycleCtx, cancel := context.WithTimeout(ctx, e.config.CycleTimeout)
	defer cancel()

	status := app.Status
	status.State = registry.ReconcileStateFetching
	status.Message = ""
	e.writeStatus(app.Name, status)

	bundle, err := e.fetcher.Fetch(cycleCtx, app.Source.Location, app.Source.Revision, app.Source.Path)
	if err != nil {
		e.failCycle(cycleCtx, worker, status, fmt.Sprintf("fetch failed: %v", err), log)
		return
	}
	manifests, err := render.Render(bundle, render.Input{
		AppName:   app.Name,
		Namespace: app.Destination.Namespace,
	})
	if err != nil {
		e.failCycle(cycleCtx, worker, status, fmt.Sprintf("render failed: %v", err), log)
		return
	}

	status.State = registry.ReconcileStateDiffing
	e.writeStatus(app.Name, status)

	live, err := e.live.ReadState(cycleCtx, manifests.Resources)
	if err != nil {
		e.failCycle(cycleCtx, worker, status, fmt.Sprintf("live state read failed: %v", err), log)
		return
	}
	owned, err := e.live.ReadOwned(cycleCtx, gvksOf(manifests.Resources), app.Destination.Namespace, app.Name)
	if err != nil {
		e.failCycle(cycleCtx, worker, status, fmt.Sprintf("owned state read failed: %v", err), log)
		return
	}
	result, err := diff.DiffSet(manifests.Resources, live, owned,
		diff.WithIgnoreRules(toIgnoreRules(app.IgnoreDifferences)),
		diff.WithLogr(log),
	)
	if err != nil {
		e.failCycle(cycleCtx, worker, status, fmt.Sprintf("diff failed: %v", err), log)
		return
	}

	status.ObservedRevision = manifests.Revision
	status.Sync = registry.SyncStatusSynced
	if result.Modified {
		status.Sync = registry.SyncStatusOutOfSync
	}
	status.Health = string(e.assessHealth(manifests, live))

	if e.shouldSync(app, worker, reason, result, manifests.Revision) {
		status.State = registry.ReconcileStateSyncing
		e.writeStatus(app.Name, status)

		executor := sync.NewExecutor(e.cluster, app.SyncPolicy, sync.WithLogr(log))
		opState := executor.Sync(cycleCtx, result, manifests.Revision)
		if errors.Is(cycleCtx.Err(), context.DeadlineExceeded) {
			opState.Phase = common.OperationFailed
			opState.Message = timeoutMessage
		}
		status.History = appendHistory(status.History, opState, e.config.HistoryLimit)
		status.Message = opState.Message
		log.Info("Sync operation finished", "operation", opState.ID, "phase", string(opState.Phase), "resources", len(opState.Results))

		switch opState.Phase {
		case common.OperationSucceeded:
			status.Sync = registry.SyncStatusSynced
		default:
			status.Sync = registry.SyncStatusOutOfSync
		}
		if opState.Phase == common.OperationFailed {
			e.finishCycle(worker, status, false, log)
			return
		}
	}

	e.finishCycle(worker, status, true, log)
}

// shouldSync decides whether this cycle applies the diff or only reports it.
func (e *Engine) shouldSync(app *registry.Application, worker *appWorker, reason TriggerReason, result *diff.Result, revision string) bool {
	if !result.Modified {
		return false
	}
	if reason == TriggerManual {
		return true
	}
	if !app.SyncPolicy.Automated {
		return false
	}
	if revision != app.Status.ObservedRevision || app.Status.Sync == registry.SyncStatusUnknown {
		// new revision, always converge
		return true
	}
	// same revision means drift: only self-heal policies chase it, and only
	// outside the cooldown window
	if !app.SyncPolicy.SelfHeal {
		return false
	}
	return worker.selfHealDue(e.config.SelfHealCooldown)
}

func (e *Engine) assessHealth(manifests *render.ManifestSet, live map[kube.ResourceKey]*unstructured.Unstructured) health.HealthStatusCode {
	var statuses []health.HealthStatusCode
	for _, obj := range manifests.Resources {
		liveObj, ok := live[kube.GetResourceKey(obj)]
		if !ok {
			statuses = append(statuses, health.HealthStatusMissing)
			continue
		}
		hs, err := health.GetResourceHealth(liveObj, nil)
		if err != nil {
			statuses = append(statuses, health.HealthStatusUnknown)
			continue
		}
		statuses = append(statuses, hs.Status)
	}
	return health.AggregateHealth(statuses)
}

// failCycle records a failed cycle outcome and enters Degraded once the
// consecutive failure threshold is hit. A failure caused by the cycle budget
// expiring is reported with the Timeout cause no matter which phase hit it.
func (e *Engine) failCycle(ctx context.Context, worker *appWorker, status registry.Status, message string, log logr.Logger) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		message = timeoutMessage
	}
	degraded := worker.recordFailure(e.config.DegradedThreshold)
	status.Message = message
	status.State = registry.ReconcileStateIdle
	if degraded {
		status.State = registry.ReconcileStateDegraded
	}
	status.ObservedAt = time.Now()
	e.writeStatus(worker.name, status)
	log.Info("Reconciliation cycle failed", "message", message, "degraded", degraded)
}

func (e *Engine) finishCycle(worker *appWorker, status registry.Status, success bool, log logr.Logger) {
	if success {
		worker.recordSuccess()
		status.State = registry.ReconcileStateIdle
	} else {
		degraded := worker.recordFailure(e.config.DegradedThreshold)
		status.State = registry.ReconcileStateIdle
		if degraded {
			status.State = registry.ReconcileStateDegraded
		}
	}
	status.ObservedAt = time.Now()
	e.writeStatus(worker.name, status)
	log.Info("Reconciliation cycle finished", "sync", string(status.Sync), "health", status.Health)
}

// writeStatus persists status with optimistic concurrency, re-reading the
// record on version conflicts. The scheduler is the only status writer, so a
// conflict only means another cycle step of the same engine got in between.
func (e *Engine) writeStatus(name string, status registry.Status) {
	for attempt := 0; attempt < 3; attempt++ {
		app, err := e.registry.Get(name)
		if err != nil {
			return
		}
		err = e.registry.UpdateStatus(name, app.Version, status)
		if err == nil || !errors.Is(err, registry.ErrVersionConflict) {
			if err != nil {
				e.log.Error(err, "Failed to persist status", "application", name)
			}
			return
		}
	}
	e.log.Info("Giving up on status write after repeated conflicts", "application", name)
}

// pruneOwned deletes every live resource attributed to the application.
// Used on deregistration when the caller asked for cleanup.
func (e *Engine) pruneOwned(ctx context.Context, app *registry.Application) error {
	bundle, err := e.fetcher.Fetch(ctx, app.Source.Location, app.Source.Revision, app.Source.Path)
	if err != nil {
		return err
	}
	manifests, err := render.Render(bundle, render.Input{AppName: app.Name, Namespace: app.Destination.Namespace})
	if err != nil {
		return err
	}
	owned, err := e.live.ReadOwned(ctx, gvksOf(manifests.Resources), app.Destination.Namespace, app.Name)
	if err != nil {
		return err
	}
	var firstErr error
	for _, obj := range owned {
		err := e.cluster.Delete(ctx, obj.GroupVersionKind(), obj.GetNamespace(), obj.GetName())
		if err != nil && !cluster.IsNotFound(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func gvksOf(resources []*unstructured.Unstructured) []schema.GroupVersionKind {
	var gvks []schema.GroupVersionKind
	for _, obj := range resources {
		gvks = append(gvks, obj.GroupVersionKind())
	}
	return gvks
}

func toIgnoreRules(rules []registry.IgnoreRule) []diff.IgnoreRule {
	out := make([]diff.IgnoreRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, diff.IgnoreRule{
			Group:      r.Group,
			Kind:       r.Kind,
			Name:       r.Name,
			FieldPaths: r.JSONPointers,
		})
	}
	return out
}

func appendHistory(history []registry.SyncRecord, op common.OperationState, limit int) []registry.SyncRecord {
	history = append(history, registry.SyncRecord{
		ID:         op.ID,
		Revision:   op.Revision,
		Phase:      string(op.Phase),
		Message:    op.Message,
		StartedAt:  op.StartedAt,
		FinishedAt: op.FinishedAt,
	})
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
