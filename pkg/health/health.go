package health

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Represents resource health status
type HealthStatusCode string

const (
	// Indicates that health assessment failed and actual health status is unknown
	HealthStatusUnknown HealthStatusCode = "Unknown"
	// Progressing health status means that resource is not healthy but still have a chance to reach healthy state
	HealthStatusProgressing HealthStatusCode = "Progressing"
	// Resource is 100% healthy
	HealthStatusHealthy HealthStatusCode = "Healthy"
	// Degraded status is used if resource status indicates failure or resource could not reach healthy state
	// within some timeout.
	HealthStatusDegraded HealthStatusCode = "Degraded"
	// Indicates that resource is missing in the cluster.
	HealthStatusMissing HealthStatusCode = "Missing"
)

// Implements custom health assessment that overrides built-in assessment
type HealthOverride interface {
	GetResourceHealth(obj *unstructured.Unstructured) (*HealthStatus, error)
}

// Holds health assessment results
type HealthStatus struct {
	Status  HealthStatusCode `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}

// healthOrder is a list of health codes in order of most healthy to least healthy
var healthOrder = []HealthStatusCode{
	HealthStatusHealthy,
	HealthStatusProgressing,
	HealthStatusDegraded,
	HealthStatusMissing,
	HealthStatusUnknown,
}

// IsWorse returns whether or not the new health status code is a worse condition than the current
func IsWorse(current, new HealthStatusCode) bool {
	currentIndex := 0
	newIndex := 0
	for i, code := range healthOrder {
		if current == code {
			currentIndex = i
		}
		if new == code {
			newIndex = i
		}
	}
	return newIndex > currentIndex
}

// GetResourceHealth returns the health of a k8s resource
func GetResourceHealth(obj *unstructured.Unstructured, override HealthOverride) (*HealthStatus, error) {
	if obj.GetDeletionTimestamp() != nil {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: "Pending deletion",
		}, nil
	}

	if override != nil {
		health, err := override.GetResourceHealth(obj)
		if err != nil {
			return &HealthStatus{Status: HealthStatusUnknown, Message: err.Error()}, err
		}
		if health != nil {
			return health, nil
		}
	}

	if healthCheck := getHealthCheckFunc(obj); healthCheck != nil {
		return healthCheck(obj)
	}
	// resources without a known check are considered healthy once present
	return &HealthStatus{Status: HealthStatusHealthy}, nil
}

type healthCheckFunc func(obj *unstructured.Unstructured) (*HealthStatus, error)

func getHealthCheckFunc(obj *unstructured.Unstructured) healthCheckFunc {
	gvk := obj.GroupVersionKind()
	switch gvk.Group {
	case "apps":
		switch gvk.Kind {
		case "Deployment":
			return getDeploymentHealth
		case "StatefulSet":
			return getStatefulSetHealth
		case "DaemonSet":
			return getDaemonSetHealth
		}
	case "batch":
		if gvk.Kind == "Job" {
			return getJobHealth
		}
	case "":
		switch gvk.Kind {
		case "Service":
			return getServiceHealth
		case "PersistentVolumeClaim":
			return getPVCHealth
		case "Pod":
			return getPodHealth
		}
	}
	return nil
}

// AggregateHealth folds per-resource statuses into the application health:
// the worst status wins.
func AggregateHealth(statuses []HealthStatusCode) HealthStatusCode {
	if len(statuses) == 0 {
		return HealthStatusHealthy
	}
	worst := HealthStatusHealthy
	for _, status := range statuses {
		if IsWorse(worst, status) {
			worst = status
		}
	}
	return worst
}
