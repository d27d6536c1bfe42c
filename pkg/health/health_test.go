package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	testingutils "github.com/namix-io/reconciler/pkg/utils/testing"
)

func assertHealth(t *testing.T, obj *unstructured.Unstructured, expected HealthStatusCode) {
	t.Helper()
	status, err := GetResourceHealth(obj, nil)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, expected, status.Status)
}

func TestDeploymentHealth(t *testing.T) {
	assertHealth(t, testingutils.Unstructured(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  generation: 1
spec:
  replicas: 2
status:
  observedGeneration: 1
  updatedReplicas: 2
  availableReplicas: 2
`), HealthStatusHealthy)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  generation: 1
spec:
  replicas: 2
status:
  observedGeneration: 1
  updatedReplicas: 1
  availableReplicas: 1
`), HealthStatusProgressing)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  generation: 1
spec:
  replicas: 2
status:
  observedGeneration: 1
  conditions:
  - type: Progressing
    reason: ProgressDeadlineExceeded
`), HealthStatusDegraded)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  paused: true
`), HealthStatusProgressing)
}

func TestServiceHealth(t *testing.T) {
	assertHealth(t, testingutils.NewService("web-svc"), HealthStatusHealthy)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: v1
kind: Service
metadata:
  name: web-svc
spec:
  type: LoadBalancer
`), HealthStatusProgressing)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: v1
kind: Service
metadata:
  name: web-svc
spec:
  type: LoadBalancer
status:
  loadBalancer:
    ingress:
    - ip: 10.0.0.1
`), HealthStatusHealthy)
}

func TestJobHealth(t *testing.T) {
	assertHealth(t, testingutils.Unstructured(`
apiVersion: batch/v1
kind: Job
metadata:
  name: migrate
status:
  conditions:
  - type: Complete
    status: "True"
`), HealthStatusHealthy)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: batch/v1
kind: Job
metadata:
  name: migrate
status:
  conditions:
  - type: Failed
    status: "True"
    message: BackoffLimitExceeded
`), HealthStatusDegraded)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: batch/v1
kind: Job
metadata:
  name: migrate
status: {}
`), HealthStatusProgressing)
}

func TestPVCHealth(t *testing.T) {
	assertHealth(t, testingutils.Unstructured(`
apiVersion: v1
kind: PersistentVolumeClaim
metadata:
  name: data
status:
  phase: Bound
`), HealthStatusHealthy)

	assertHealth(t, testingutils.Unstructured(`
apiVersion: v1
kind: PersistentVolumeClaim
metadata:
  name: data
status:
  phase: Lost
`), HealthStatusDegraded)
}

func TestUnknownKindIsHealthy(t *testing.T) {
	assertHealth(t, testingutils.NewCustomResource(), HealthStatusHealthy)
}

func TestDeletionTimestampIsProgressing(t *testing.T) {
	obj := testingutils.NewService("web-svc")
	require.NoError(t, unstructured.SetNestedField(obj.Object, "2026-01-01T00:00:00Z", "metadata", "deletionTimestamp"))
	assertHealth(t, obj, HealthStatusProgressing)
}

func TestIsWorse(t *testing.T) {
	assert.True(t, IsWorse(HealthStatusHealthy, HealthStatusDegraded))
	assert.False(t, IsWorse(HealthStatusDegraded, HealthStatusHealthy))
	assert.False(t, IsWorse(HealthStatusHealthy, HealthStatusHealthy))
}

func TestAggregateHealth(t *testing.T) {
	assert.Equal(t, HealthStatusHealthy, AggregateHealth(nil))
	assert.Equal(t, HealthStatusDegraded, AggregateHealth([]HealthStatusCode{
		HealthStatusHealthy, HealthStatusDegraded, HealthStatusProgressing,
	}))
	assert.Equal(t, HealthStatusMissing, AggregateHealth([]HealthStatusCode{
		HealthStatusHealthy, HealthStatusMissing,
	}))
}
