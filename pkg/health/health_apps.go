package health

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

func getDeploymentHealth(obj *unstructured.Unstructured) (*HealthStatus, error) {
	var deployment appsv1.Deployment
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &deployment); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to Deployment: %w", err)
	}
	if deployment.Spec.Paused {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: "Deployment is paused",
		}, nil
	}
	if deployment.Generation > deployment.Status.ObservedGeneration {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: "Waiting for rollout to be observed",
		}, nil
	}
	for _, condition := range deployment.Status.Conditions {
		if condition.Type == appsv1.DeploymentProgressing && condition.Reason == "ProgressDeadlineExceeded" {
			return &HealthStatus{
				Status:  HealthStatusDegraded,
				Message: fmt.Sprintf("Deployment %q exceeded its progress deadline", obj.GetName()),
			}, nil
		}
	}
	replicas := int32(1)
	if deployment.Spec.Replicas != nil {
		replicas = *deployment.Spec.Replicas
	}
	if deployment.Status.UpdatedReplicas < replicas {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: fmt.Sprintf("Waiting for rollout: %d of %d updated replicas are available", deployment.Status.UpdatedReplicas, replicas),
		}, nil
	}
	if deployment.Status.AvailableReplicas < deployment.Status.UpdatedReplicas {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: fmt.Sprintf("Waiting for rollout: %d of %d updated replicas are available", deployment.Status.AvailableReplicas, deployment.Status.UpdatedReplicas),
		}, nil
	}
	return &HealthStatus{Status: HealthStatusHealthy}, nil
}

func getStatefulSetHealth(obj *unstructured.Unstructured) (*HealthStatus, error) {
	var sts appsv1.StatefulSet
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &sts); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to StatefulSet: %w", err)
	}
	if sts.Generation > sts.Status.ObservedGeneration {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: "Waiting for statefulset spec update to be observed",
		}, nil
	}
	replicas := int32(1)
	if sts.Spec.Replicas != nil {
		replicas = *sts.Spec.Replicas
	}
	if sts.Status.ReadyReplicas < replicas {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: fmt.Sprintf("Waiting for %d pods to be ready", replicas-sts.Status.ReadyReplicas),
		}, nil
	}
	if sts.Status.UpdateRevision != "" && sts.Status.CurrentRevision != sts.Status.UpdateRevision {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: "Waiting for statefulset rolling update to complete",
		}, nil
	}
	return &HealthStatus{Status: HealthStatusHealthy}, nil
}

func getDaemonSetHealth(obj *unstructured.Unstructured) (*HealthStatus, error) {
	var ds appsv1.DaemonSet
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &ds); err != nil {
		return nil, fmt.Errorf("failed to convert unstructured to DaemonSet: %w", err)
	}
	if ds.Generation > ds.Status.ObservedGeneration {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: "Waiting for rollout to be observed",
		}, nil
	}
	if ds.Status.UpdatedNumberScheduled < ds.Status.DesiredNumberScheduled {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: fmt.Sprintf("Waiting for daemon set %q rollout to finish", obj.GetName()),
		}, nil
	}
	if ds.Status.NumberAvailable < ds.Status.DesiredNumberScheduled {
		return &HealthStatus{
			Status:  HealthStatusProgressing,
			Message: fmt.Sprintf("Waiting for %d pods to be available", ds.Status.DesiredNumberScheduled-ds.Status.NumberAvailable),
		}, nil
	}
	return &HealthStatus{Status: HealthStatusHealthy}, nil
}
