package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2/klogr"

	"github.com/namix-io/reconciler/pkg/cluster"
	"github.com/namix-io/reconciler/pkg/registry"
	"github.com/namix-io/reconciler/pkg/source"
	"github.com/namix-io/reconciler/pkg/utils/tracing"
)

// Config tunes the reconciliation scheduler.
type Config struct {
	// PollInterval is the periodic tick between reconciliation cycles.
	PollInterval time.Duration
	// CycleTimeout is the hard wall-clock budget of one cycle.
	CycleTimeout time.Duration
	// DegradedThreshold is the number of consecutive failed cycles after
	// which automatic retries are suppressed. 0 disables the Degraded state.
	DegradedThreshold int
	// SelfHealCooldown rate limits drift-triggered syncs per application.
	SelfHealCooldown time.Duration
	// HistoryLimit caps the sync history kept per application.
	HistoryLimit int
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Minute
	}
	if c.CycleTimeout == 0 {
		c.CycleTimeout = 5 * time.Minute
	}
	if c.DegradedThreshold == 0 {
		c.DegradedThreshold = 5
	}
	if c.SelfHealCooldown == 0 {
		c.SelfHealCooldown = 5 * time.Second
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 10
	}
}

type Option func(*Engine)

func WithLogr(log logr.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

func WithTracer(tracer tracing.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// Engine is the reconciliation scheduler: one worker per registered
// Application, concurrent across Applications, at most one in-flight cycle
// per Application.
type Engine struct {
	config   Config
	registry registry.Registry
	fetcher  source.Fetcher
	cluster  cluster.Interface
	live     *cluster.LiveStateReader
	log      logr.Logger
	tracer   tracing.Tracer

	workers appWorkerMap

	// runMu guards rootCtx and group: Register may race with Run setting them
	runMu sync.Mutex
	// rootCtx is the lifetime of Run, workers derive their contexts from it
	rootCtx context.Context
	group   *errgroup.Group
}

func New(config Config, reg registry.Registry, fetcher source.Fetcher, clusterIf cluster.Interface, opts ...Option) *Engine {
	config.applyDefaults()
	e := &Engine{
		config:   config,
		registry: reg,
		fetcher:  fetcher,
		cluster:  clusterIf,
		log:      klogr.New(),
		tracer:   tracing.NopTracer{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.live = cluster.NewLiveStateReader(clusterIf, e.log)
	return e
}

// Run starts a worker per registered Application plus the periodic tick loop
// and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	e.runMu.Lock()
	e.group = group
	e.rootCtx = groupCtx
	e.runMu.Unlock()

	for _, app := range e.registry.List() {
		e.startWorker(app.Name)
	}

	group.Go(func() error {
		ticker := time.NewTicker(e.config.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				e.tick()
			}
		}
	})

	e.log.Info("Reconciliation engine started", "pollInterval", e.config.PollInterval.String())
	return group.Wait()
}

// tick requests a periodic refresh for every application. Degraded
// applications are skipped: their automatic retries stay suppressed until an
// operator forces a refresh or an external event arrives.
func (e *Engine) tick() {
	e.workers.Range(func(name string, worker *appWorker) bool {
		if worker.isDegraded() {
			e.log.V(1).Info("Skipping degraded application", "application", name)
			return true
		}
		worker.requestRefresh(TriggerPeriodic)
		return true
	})
}

func (e *Engine) startWorker(name string) {
	e.runMu.Lock()
	group, rootCtx := e.group, e.rootCtx
	e.runMu.Unlock()
	if group == nil {
		// not running yet, Run starts workers for every registered app
		return
	}
	worker := newAppWorker(name)
	if _, loaded := e.workers.LoadOrStore(name, worker); loaded {
		return
	}
	workerCtx, cancel := context.WithCancel(rootCtx)
	worker.cancel = cancel
	worker.requestRefresh(TriggerPeriodic)
	group.Go(func() error {
		e.runWorker(workerCtx, worker)
		return nil
	})
}

// runWorker serializes cycles for one application: the next trigger is only
// consumed after the previous cycle finished.
func (e *Engine) runWorker(ctx context.Context, worker *appWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-worker.trigger:
			if reason.forced() {
				worker.clearDegraded()
			}
			e.runCycle(ctx, worker, reason)
		}
	}
}

// RequestRefresh schedules a cycle for the named application. Forced reasons
// (manual, webhook) clear the Degraded state first.
func (e *Engine) RequestRefresh(name string, reason TriggerReason) error {
	worker, ok := e.workers.Load(name)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, name)
	}
	if reason.forced() {
		worker.clearDegraded()
	}
	worker.requestRefresh(reason)
	return nil
}

// Register adds the application to the registry and starts its worker. When
// the engine is not running yet the worker is picked up by Run instead.
func (e *Engine) Register(app *registry.Application) error {
	if err := e.registry.Register(app); err != nil {
		return err
	}
	e.startWorker(app.Name)
	return nil
}

// Deregister stops the application's worker, optionally prunes its owned
// resources, and removes the record. A running cycle is cancelled
// cooperatively through the worker context.
func (e *Engine) Deregister(ctx context.Context, name string, prune bool) error {
	app, err := e.registry.Get(name)
	if err != nil {
		return err
	}
	if worker, ok := e.workers.Load(name); ok {
		if worker.cancel != nil {
			worker.cancel()
		}
		e.workers.Delete(name)
	}
	if prune {
		if err := e.pruneOwned(ctx, app); err != nil {
			e.log.Error(err, "Failed to prune owned resources", "application", name)
		}
	}
	if err := e.registry.Deregister(name); err != nil {
		return err
	}
	e.log.Info("Application deregistered", "application", name, "pruned", prune)
	return nil
}
