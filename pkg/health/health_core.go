package health

import (
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

func getServiceHealth(obj *unstructured.Unstructured) (*HealthStatus, error) {
	var service corev1.Service
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &service); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to Service: %w", err)
	}
	if service.Spec.Type == corev1.ServiceTypeLoadBalancer && len(service.Status.LoadBalancer.Ingress) == 0 {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: "Waiting for load balancer to be provisioned",
		}, nil
	}
	return &HealthStatus{Status: HealthStatusHealthy}, nil
}

func getPVCHealth(obj *unstructured.Unstructured) (*HealthStatus, error) {
	var pvc corev1.PersistentVolumeClaim
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &pvc); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to PersistentVolumeClaim: %w", err)
	}
	switch pvc.Status.Phase {
	case corev1.ClaimBound:
		return &HealthStatus{Status: HealthStatusHealthy}, nil
	case corev1.ClaimLost:
		return &HealthStatus{Status: HealthStatusDegraded, Message: "Claim lost its bound volume"}, nil
	default:
		return &HealthStatus{Status: HealthStatusProgressing}, nil
	}
}

func getPodHealth(obj *unstructured.Unstructured) (*HealthStatus, error) {
	var pod corev1.Pod
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &pod); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to Pod: %w", err)
	}
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return &HealthStatus{Status: HealthStatusHealthy, Message: pod.Status.Message}, nil
	case corev1.PodRunning:
		for _, status := range pod.Status.ContainerStatuses {
			if status.State.Waiting != nil && status.State.Waiting.Reason == "CrashLoopBackOff" {
				return &HealthStatus{Status: HealthStatusDegraded, Message: status.State.Waiting.Message}, nil
			}
		}
		if pod.Spec.RestartPolicy == corev1.RestartPolicyAlways {
			for _, condition := range pod.Status.Conditions {
				if condition.Type == corev1.PodReady && condition.Status == corev1.ConditionTrue {
					return &HealthStatus{Status: HealthStatusHealthy}, nil
				}
			}
			return &HealthStatus{Status: HealthStatusProgressing, Message: "Pod is running but not ready"}, nil
		}
		return &HealthStatus{Status: HealthStatusProgressing}, nil
	case corev1.PodPending:
		return &HealthStatus{Status: HealthStatusProgressing, Message: pod.Status.Message}, nil
	case corev1.PodFailed:
		return &HealthStatus{Status: HealthStatusDegraded, Message: pod.Status.Message}, nil
	default:
		return &HealthStatus{Status: HealthStatusUnknown, Message: pod.Status.Message}, nil
	}
}

func getJobHealth(obj *unstructured.Unstructured) (*HealthStatus, error) {
	var job batchv1.Job
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &job); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to Job: %w", err)
	}
	for _, condition := range job.Status.Conditions {
		switch condition.Type {
		case batchv1.JobFailed:
			if condition.Status == corev1.ConditionTrue {
				return &HealthStatus{Status: HealthStatusDegraded, Message: condition.Message}, nil
			}
		case batchv1.JobComplete:
			if condition.Status == corev1.ConditionTrue {
				return &HealthStatus{Status: HealthStatusHealthy, Message: condition.Message}, nil
			}
		}
	}
	return &HealthStatus{Status: HealthStatusProgressing, Message: "Job is running"}, nil
}
