package engine

import (
	"context"
	"sync"
	"time"
)

// TriggerReason identifies what scheduled a reconciliation cycle.
type TriggerReason string

const (
	TriggerPeriodic TriggerReason = "periodic"
	TriggerWebhook  TriggerReason = "webhook"
	TriggerManual   TriggerReason = "manual"
	TriggerSelfHeal TriggerReason = "self-heal"
)

// forced returns true for triggers that may clear the Degraded state and
// bypass tick suppression.
func (r TriggerReason) forced() bool {
	return r == TriggerManual || r == TriggerWebhook
}

// appWorker owns the reconciliation loop of a single Application. The
// buffered-1 trigger channel doubles as the pending flag: any number of
// triggers arriving while a cycle is in flight coalesce into exactly one
// follow-up run.
type appWorker struct {
	name    string
	trigger chan TriggerReason
	cancel  context.CancelFunc

	mu           sync.Mutex
	failures     int
	degraded     bool
	lastSelfHeal time.Time
}

func newAppWorker(name string) *appWorker {
	return &appWorker{
		name:    name,
		trigger: make(chan TriggerReason, 1),
	}
}

// requestRefresh is the check-and-set that implements trigger coalescing.
// Returns false when a run was already pending.
func (w *appWorker) requestRefresh(reason TriggerReason) bool {
	select {
	case w.trigger <- reason:
		return true
	default:
		return false
	}
}

func (w *appWorker) recordFailure(threshold int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures++
	if threshold > 0 && w.failures >= threshold {
		w.degraded = true
	}
	return w.degraded
}

func (w *appWorker) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = 0
	w.degraded = false
}

func (w *appWorker) isDegraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

func (w *appWorker) clearDegraded() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = 0
	w.degraded = false
}

// selfHealDue rate limits drift-triggered syncs to one per cooldown window.
func (w *appWorker) selfHealDue(cooldown time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Since(w.lastSelfHeal) < cooldown {
		return false
	}
	w.lastSelfHeal = time.Now()
	return true
}

// appWorkerMap is a thread-safe map of application name to *appWorker
type appWorkerMap struct {
	syncMap sync.Map
}

func (m *appWorkerMap) Load(name string) (*appWorker, bool) {
	val, ok := m.syncMap.Load(name)
	typedVal, typeOk := val.(*appWorker)
	if !ok || !typeOk {
		return nil, false
	}
	return typedVal, true
}

func (m *appWorkerMap) LoadOrStore(name string, val *appWorker) (*appWorker, bool) {
	actual, loaded := m.syncMap.LoadOrStore(name, val)
	if !loaded {
		return val, false
	}
	typedVal, typeOk := actual.(*appWorker)
	if !typeOk {
		return nil, false
	}
	return typedVal, true
}

func (m *appWorkerMap) Delete(name string) {
	m.syncMap.Delete(name)
}

func (m *appWorkerMap) Range(fn func(name string, worker *appWorker) bool) {
	m.syncMap.Range(func(key, value interface{}) bool {
		typedKey, keyTypeOk := key.(string)
		typedValue, valueTypeOk := value.(*appWorker)
		if !keyTypeOk || !valueTypeOk {
			return true
		}
		return fn(typedKey, typedValue)
	})
}
