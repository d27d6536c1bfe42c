package registry

import (
	"time"
)

// SyncStatusCode compares the last observed live state against the desired
// revision.
type SyncStatusCode string

const (
	SyncStatusUnknown   SyncStatusCode = "Unknown"
	SyncStatusSynced    SyncStatusCode = "Synced"
	SyncStatusOutOfSync SyncStatusCode = "OutOfSync"
)

// ReconcileState is the scheduler-visible phase of an Application's control
// loop.
type ReconcileState string

const (
	ReconcileStateIdle     ReconcileState = "Idle"
	ReconcileStateFetching ReconcileState = "Fetching"
	ReconcileStateDiffing  ReconcileState = "Diffing"
	ReconcileStateSyncing  ReconcileState = "Syncing"
	ReconcileStateDegraded ReconcileState = "Degraded"
	ReconcileStateRemoved  ReconcileState = "Removed"
)

// Source declares where the desired state of an Application comes from.
type Source struct {
	// Location is the address of the manifest store.
	Location string `json:"location"`
	// Revision is a branch, tag or pinned revision hash within the store.
	Revision string `json:"revision"`
	// Path restricts the fetch to a sub-directory of the store, "" means root.
	Path string `json:"path,omitempty"`
}

// Destination identifies the cluster and namespace the Application deploys to.
type Destination struct {
	Server    string `json:"server,omitempty"`
	Namespace string `json:"namespace"`
}

// RetryPolicy bounds per-resource retries during sync.
type RetryPolicy struct {
	Limit       int           `json:"limit,omitempty"`
	BaseDelay   time.Duration `json:"baseDelay,omitempty"`
	MaxDuration time.Duration `json:"maxDuration,omitempty"`
}

// SyncPolicy controls when and how aggressively an Application is synced.
// Prune is only honored when Automated is set: manual syncs never delete.
type SyncPolicy struct {
	Automated bool        `json:"automated"`
	Prune     bool        `json:"prune"`
	SelfHeal  bool        `json:"selfHeal"`
	Retry     RetryPolicy `json:"retry,omitempty"`
}

// IgnoreRule excludes fields from diffing for matching resources. An empty
// Group, Kind or Name matches everything.
type IgnoreRule struct {
	Group string `json:"group,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Name  string `json:"name,omitempty"`
	// JSONPointers are dot separated field paths, e.g. "spec.replicas".
	JSONPointers []string `json:"jsonPointers"`
}

// SyncRecord is one entry in an Application's sync history. Terminal records
// are immutable once appended.
type SyncRecord struct {
	ID         string    `json:"id"`
	Revision   string    `json:"revision"`
	Phase      string    `json:"phase"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Status holds the outcome of the most recent reconciliation cycle. Only the
// scheduler writes it.
type Status struct {
	State            ReconcileState `json:"state"`
	Sync             SyncStatusCode `json:"sync"`
	Health           string         `json:"health,omitempty"`
	ObservedRevision string         `json:"observedRevision,omitempty"`
	Message          string         `json:"message,omitempty"`
	ObservedAt       time.Time      `json:"observedAt,omitempty"`
	History          []SyncRecord   `json:"history,omitempty"`
}

// Application is the unit of configuration the scheduler iterates over.
type Application struct {
	// Name is the unique registry key.
	Name        string      `json:"name"`
	Source      Source      `json:"source"`
	Destination Destination `json:"destination"`
	SyncPolicy  SyncPolicy  `json:"syncPolicy"`
	// IgnoreDifferences configures field level diff exclusions.
	IgnoreDifferences []IgnoreRule `json:"ignoreDifferences,omitempty"`
	// Version guards status updates with optimistic concurrency. Incremented
	// by the registry on every successful write.
	Version int64  `json:"version"`
	Status  Status `json:"status"`
}

func (a *Application) DeepCopy() *Application {
	out := *a
	out.IgnoreDifferences = append([]IgnoreRule(nil), a.IgnoreDifferences...)
	out.Status.History = append([]SyncRecord(nil), a.Status.History...)
	return &out
}
