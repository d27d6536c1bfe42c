package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2/klogr"
)

func newTestRegistry(t *testing.T) (Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "applications.yaml")
	reg, err := NewFileRegistry(path, klogr.New())
	require.NoError(t, err)
	return reg, path
}

func testApp(name string) *Application {
	return &Application{
		Name: name,
		Source: Source{
			Location: "/var/lib/manifests",
			Revision: "main",
		},
		Destination: Destination{Namespace: "dev"},
		SyncPolicy:  SyncPolicy{Automated: true},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(testApp("web-dev")))

	app, err := reg.Get("web-dev")
	require.NoError(t, err)
	assert.Equal(t, int64(1), app.Version)
	assert.Equal(t, ReconcileStateIdle, app.Status.State)
	assert.Equal(t, SyncStatusUnknown, app.Status.Sync)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(testApp("web-dev")))
	assert.ErrorIs(t, reg.Register(testApp("web-dev")), ErrAlreadyExists)
}

func TestRegistry_GetNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_UpdateStatus(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(testApp("web-dev")))

	app, err := reg.Get("web-dev")
	require.NoError(t, err)

	status := app.Status
	status.Sync = SyncStatusSynced
	require.NoError(t, reg.UpdateStatus("web-dev", app.Version, status))

	updated, err := reg.Get("web-dev")
	require.NoError(t, err)
	assert.Equal(t, SyncStatusSynced, updated.Status.Sync)
	assert.Equal(t, app.Version+1, updated.Version)
}

func TestRegistry_UpdateStatusVersionConflict(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(testApp("web-dev")))

	app, err := reg.Get("web-dev")
	require.NoError(t, err)
	require.NoError(t, reg.UpdateStatus("web-dev", app.Version, app.Status))

	// second write with the stale version must be rejected
	err = reg.UpdateStatus("web-dev", app.Version, app.Status)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestRegistry_Deregister(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(testApp("web-dev")))
	require.NoError(t, reg.Deregister("web-dev"))
	_, err := reg.Get("web-dev")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Deregister("web-dev"), ErrNotFound)
}

func TestRegistry_PersistsAcrossReload(t *testing.T) {
	reg, path := newTestRegistry(t)
	require.NoError(t, reg.Register(testApp("web-dev")))
	require.NoError(t, reg.Register(testApp("api-dev")))

	reloaded, err := NewFileRegistry(path, klogr.New())
	require.NoError(t, err)
	apps := reloaded.List()
	require.Len(t, apps, 2)
	// List is ordered by name
	assert.Equal(t, "api-dev", apps[0].Name)
	assert.Equal(t, "web-dev", apps[1].Name)
}

func TestRegistry_GetReturnsSnapshot(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(testApp("web-dev")))

	app, err := reg.Get("web-dev")
	require.NoError(t, err)
	app.Status.Sync = SyncStatusOutOfSync

	fresh, err := reg.Get("web-dev")
	require.NoError(t, err)
	assert.Equal(t, SyncStatusUnknown, fresh.Status.Sync)
}
