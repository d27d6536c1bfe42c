package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"

	utilio "github.com/namix-io/reconciler/pkg/utils/io"
)

var (
	// ErrNotFound is returned when the requested Application is not registered.
	ErrNotFound = fmt.Errorf("application not found")
	// ErrVersionConflict is returned when an update carries a stale version.
	ErrVersionConflict = fmt.Errorf("application version conflict")
	// ErrAlreadyExists is returned when registering a duplicate name.
	ErrAlreadyExists = fmt.Errorf("application already registered")
)

// Registry is the durable store of Application records. The scheduler is the
// single status writer; reads may happen concurrently from any goroutine.
type Registry interface {
	// List returns snapshots of all registered Applications ordered by name.
	List() []*Application
	// Get returns a snapshot of the named Application.
	Get(name string) (*Application, error)
	// Register adds a new Application with version 1 and Idle state.
	Register(app *Application) error
	// Deregister removes the Application record.
	Deregister(name string) error
	// UpdateStatus writes status for the named Application if version still
	// matches, returns ErrVersionConflict otherwise.
	UpdateStatus(name string, version int64, status Status) error
}

type fileRegistry struct {
	mu   sync.RWMutex
	path string
	apps map[string]*Application
	log  logr.Logger
}

// store is the on-disk shape of the registry file.
type store struct {
	Applications []*Application `json:"applications"`
}

// NewFileRegistry loads the registry from path, creating an empty store when
// the file does not exist yet.
func NewFileRegistry(path string, log logr.Logger) (Registry, error) {
	r := &fileRegistry{
		path: path,
		apps: map[string]*Application{},
		log:  log,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
		}
		return r, nil
	}
	var s store
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	for _, app := range s.Applications {
		r.apps[app.Name] = app
	}
	r.log.Info("Loaded registry", "path", path, "applications", len(r.apps))
	return r, nil
}

func (r *fileRegistry) List() []*Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	apps := make([]*Application, 0, len(r.apps))
	for _, app := range r.apps {
		apps = append(apps, app.DeepCopy())
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps
}

func (r *fileRegistry) Get(name string) (*Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return app.DeepCopy(), nil
}

func (r *fileRegistry) Register(app *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[app.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, app.Name)
	}
	record := app.DeepCopy()
	record.Version = 1
	if record.Status.State == "" {
		record.Status.State = ReconcileStateIdle
	}
	if record.Status.Sync == "" {
		record.Status.Sync = SyncStatusUnknown
	}
	r.apps[app.Name] = record
	return r.persist()
}

func (r *fileRegistry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(r.apps, name)
	return r.persist()
}

func (r *fileRegistry) UpdateStatus(name string, version int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if app.Version != version {
		return fmt.Errorf("%w: %s expected %d actual %d", ErrVersionConflict, name, version, app.Version)
	}
	app.Status = status
	app.Version++
	return r.persist()
}

// persist writes the whole store atomically, callers must hold the lock.
func (r *fileRegistry) persist() error {
	s := store{Applications: make([]*Application, 0, len(r.apps))}
	for _, app := range r.apps {
		s.Applications = append(s.Applications, app)
	}
	sort.Slice(s.Applications, func(i, j int) bool { return s.Applications[i].Name < s.Applications[j].Name })
	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	return utilio.WriteFileAtomic(r.path, data, 0o600)
}
