package sync

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/klog/v2/klogr"

	"github.com/namix-io/reconciler/pkg/cluster"
	"github.com/namix-io/reconciler/pkg/diff"
	"github.com/namix-io/reconciler/pkg/registry"
	"github.com/namix-io/reconciler/pkg/sync/common"
)

type SyncOpt func(*Executor)

func WithLogr(log logr.Logger) SyncOpt {
	return func(e *Executor) {
		e.log = log
	}
}

// WithPruneAllowed overrides the policy gate on deletions, used for explicit
// deregistration cleanup.
func WithPruneAllowed(allowed bool) SyncOpt {
	return func(e *Executor) {
		e.pruneAllowed = allowed
	}
}

// Executor applies one diff result to the cluster in dependency order:
// creates and updates first (namespaces and CRDs ahead of their dependents),
// deletions last and only when the policy allows pruning. A non-transient
// failure on one resource does not abort the rest of the queue.
type Executor struct {
	cluster      cluster.Interface
	policy       registry.SyncPolicy
	pruneAllowed bool
	log          logr.Logger
}

func NewExecutor(c cluster.Interface, policy registry.SyncPolicy, opts ...SyncOpt) *Executor {
	e := &Executor{
		cluster:      c,
		policy:       policy,
		pruneAllowed: policy.Automated && policy.Prune,
		log:          klogr.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync runs the operation to completion or cancellation and returns its
// terminal state. Cancellation is cooperative: the in-flight resource
// operation finishes, pending ones are abandoned.
func (e *Executor) Sync(ctx context.Context, result *diff.Result, revision string) common.OperationState {
	state := common.OperationState{
		ID:        uuid.New().String(),
		Phase:     common.OperationRunning,
		Revision:  revision,
		StartedAt: time.Now(),
	}

	tasks := e.tasksFor(result)
	applies, prunes := tasks.Split(func(task *syncTask) bool { return !task.isPrune() })
	applies.Sort()
	ordered := append(applies, prunes...)

	for i, task := range ordered {
		if err := ctx.Err(); err != nil {
			e.abandon(ordered[i:])
			state.Phase = common.OperationCancelled
			state.Message = "operation cancelled"
			break
		}
		e.runTask(ctx, task)
		e.log.V(1).Info("Task finished", "task", task.String(), "code", task.code, "message", task.message)
	}

	for i, task := range ordered {
		state.Results = append(state.Results, common.ResourceSyncResult{
			ResourceKey: task.resourceKey(),
			Code:        task.code,
			Message:     task.message,
			Order:       i,
		})
	}
	if !state.Phase.Completed() {
		state.Phase = phaseFor(ordered)
		state.Message = fmt.Sprintf("%d resources synced", len(ordered))
		if state.Phase != common.OperationSucceeded {
			state.Message = messageFor(ordered)
		}
	}
	state.FinishedAt = time.Now()
	return state
}

func (e *Executor) tasksFor(result *diff.Result) syncTasks {
	var tasks syncTasks
	for i := range result.Diffs {
		d := result.Diffs[i]
		switch d.Type {
		case diff.ResultTypeInSync:
			continue
		case diff.ResultTypeUnknown:
			tasks = append(tasks, &syncTask{
				targetObj: d.Target, liveObj: d.Live, diffType: d.Type,
				code: common.ResultCodeSyncFailed, message: d.Message,
			})
			continue
		}
		tasks = append(tasks, &syncTask{targetObj: d.Target, liveObj: d.Live, diffType: d.Type})
	}
	return tasks
}

func (e *Executor) runTask(ctx context.Context, task *syncTask) {
	if task.code != "" {
		return
	}
	if task.isPrune() {
		e.prune(ctx, task)
		return
	}
	e.apply(ctx, task)
}

func (e *Executor) apply(ctx context.Context, task *syncTask) {
	err := e.withRetry(ctx, func() error {
		_, applyErr := e.cluster.Apply(ctx, task.targetObj)
		return applyErr
	})
	if err != nil {
		task.code = common.ResultCodeSyncFailed
		task.message = err.Error()
		return
	}
	task.code = common.ResultCodeSynced
	task.message = "applied"
}

func (e *Executor) prune(ctx context.Context, task *syncTask) {
	if !e.pruneAllowed {
		task.code = common.ResultCodePruneSkipped
		task.message = "ignored (requires pruning)"
		return
	}
	obj := task.liveObj
	err := e.withRetry(ctx, func() error {
		deleteErr := e.cluster.Delete(ctx, obj.GroupVersionKind(), obj.GetNamespace(), obj.GetName())
		if cluster.IsNotFound(deleteErr) {
			return nil
		}
		return deleteErr
	})
	if err != nil {
		task.code = common.ResultCodeSyncFailed
		task.message = err.Error()
		return
	}
	task.code = common.ResultCodePruned
	task.message = "pruned"
}

// withRetry retries transient ReadError failures with bounded exponential
// backoff, validation rejections fail immediately.
func (e *Executor) withRetry(ctx context.Context, op func() error) error {
	attempts := uint(e.policy.Retry.Limit)
	if attempts == 0 {
		attempts = 3
	}
	delay := e.policy.Retry.BaseDelay
	if delay == 0 {
		delay = 200 * time.Millisecond
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(cluster.IsReadError),
	}
	if e.policy.Retry.MaxDuration > 0 {
		opts = append(opts, retry.MaxDelay(e.policy.Retry.MaxDuration))
	}
	return retry.Do(op, opts...)
}

func (e *Executor) abandon(tasks syncTasks) {
	for _, task := range tasks {
		if task.code == "" {
			task.code = common.ResultCodeSkipped
			task.message = "operation cancelled"
		}
	}
}

func phaseFor(tasks syncTasks) common.OperationPhase {
	if len(tasks) == 0 {
		return common.OperationSucceeded
	}
	failed := tasks.Filter(func(task *syncTask) bool { return task.code == common.ResultCodeSyncFailed })
	if len(failed) == 0 {
		return common.OperationSucceeded
	}
	if len(failed) == len(tasks) {
		return common.OperationFailed
	}
	return common.OperationPartiallyFailed
}

func messageFor(tasks syncTasks) string {
	failed := tasks.Filter(func(task *syncTask) bool { return task.code == common.ResultCodeSyncFailed })
	if len(failed) == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d resources failed: %s", len(failed), len(tasks), failed.String())
}
