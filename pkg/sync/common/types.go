package common

import (
	"time"

	"github.com/namix-io/reconciler/pkg/utils/kube"
)

// OperationPhase is the lifecycle state of one sync operation. Terminal
// phases are immutable: once reached the operation only gets appended to the
// application's history.
type OperationPhase string

const (
	OperationPending         OperationPhase = "Pending"
	OperationRunning         OperationPhase = "Running"
	OperationSucceeded       OperationPhase = "Succeeded"
	OperationFailed          OperationPhase = "Failed"
	OperationPartiallyFailed OperationPhase = "PartiallyFailed"
	OperationCancelled       OperationPhase = "Cancelled"
)

func (p OperationPhase) Completed() bool {
	switch p {
	case OperationSucceeded, OperationFailed, OperationPartiallyFailed, OperationCancelled:
		return true
	}
	return false
}

func (p OperationPhase) Successful() bool {
	return p == OperationSucceeded
}

// ResultCode is the outcome of one resource within a sync operation.
type ResultCode string

const (
	ResultCodeSynced       ResultCode = "Synced"
	ResultCodeSyncFailed   ResultCode = "SyncFailed"
	ResultCodePruned       ResultCode = "Pruned"
	ResultCodePruneSkipped ResultCode = "PruneSkipped"
	ResultCodeSkipped      ResultCode = "Skipped"
)

// ResourceSyncResult holds the result of applying one resource.
type ResourceSyncResult struct {
	ResourceKey kube.ResourceKey
	Code        ResultCode
	Message     string
	// Order is the position the resource held in the dependency ordering,
	// kept for failure attribution.
	Order int
}

// OperationState is the full observable state of a sync operation.
type OperationState struct {
	ID         string
	Phase      OperationPhase
	Message    string
	Revision   string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []ResourceSyncResult
}
