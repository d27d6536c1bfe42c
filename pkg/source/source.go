package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"sigs.k8s.io/yaml"
)

// Document is one raw manifest file fetched from the store. Path is relative
// to the revision root and reported in render errors.
type Document struct {
	Path string
	Data []byte
}

// Bundle is the immutable result of one fetch: the raw documents of a single
// resolved revision.
type Bundle struct {
	// Revision is the resolved immutable revision hash, not the ref that was
	// asked for.
	Revision  string
	Documents []Document
}

// Fetcher retrieves a versioned snapshot of desired-state manifests. Safe for
// concurrent use across Applications; the scheduler guarantees per-Application
// calls never overlap.
type Fetcher interface {
	// Fetch resolves revisionRef within the store at location and returns the
	// documents of the resolved revision. Fails with a classified *Error.
	Fetch(ctx context.Context, location string, revisionRef string, path string) (*Bundle, error)
	// ResolveRevision resolves revisionRef to an immutable revision hash
	// without fetching documents.
	ResolveRevision(ctx context.Context, location string, revisionRef string) (string, error)
}

// refStoreFetcher reads a ref-addressed manifest store laid out as
//
//	<location>/refs.yaml              ref name -> revision hash
//	<location>/revisions/<hash>/...   manifest tree of one revision
//
// A revisionRef naming an existing revision directory is treated as a pin.
type refStoreFetcher struct {
	log logr.Logger

	mu    sync.Mutex
	cache map[string]*Bundle
}

// NewRefStoreFetcher returns a Fetcher over ref-addressed stores that caches
// the last fetched bundle per location+ref until the resolved hash moves.
func NewRefStoreFetcher(log logr.Logger) Fetcher {
	return &refStoreFetcher{
		log:   log,
		cache: map[string]*Bundle{},
	}
}

func (f *refStoreFetcher) ResolveRevision(ctx context.Context, location string, revisionRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(KindSourceUnavailable, "fetch aborted: %v", err)
	}
	refs, err := f.loadRefs(location)
	if err != nil {
		return "", err
	}
	if hash, ok := refs[revisionRef]; ok {
		return hash, nil
	}
	// a ref naming an existing revision directory is an immutable pin
	if info, err := os.Stat(filepath.Join(location, "revisions", revisionRef)); err == nil && info.IsDir() {
		return revisionRef, nil
	}
	return "", newError(KindRevisionNotFound, "revision %q not found in %s", revisionRef, location)
}

func (f *refStoreFetcher) Fetch(ctx context.Context, location string, revisionRef string, path string) (*Bundle, error) {
	hash, err := f.ResolveRevision(ctx, location, revisionRef)
	if err != nil {
		return nil, err
	}

	cacheKey := location + "|" + revisionRef + "|" + path
	f.mu.Lock()
	if cached, ok := f.cache[cacheKey]; ok && cached.Revision == hash {
		f.mu.Unlock()
		f.log.V(1).Info("Fetch served from cache", "location", location, "revision", hash)
		return cached, nil
	}
	f.mu.Unlock()

	root := filepath.Join(location, "revisions", hash, path)
	docs, err := loadDocuments(root)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Revision: hash, Documents: docs}

	f.mu.Lock()
	f.cache[cacheKey] = bundle
	f.mu.Unlock()
	f.log.Info("Fetched revision", "location", location, "ref", revisionRef, "revision", hash, "documents", len(docs))
	return bundle, nil
}

func (f *refStoreFetcher) loadRefs(location string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(location, "refs.yaml"))
	if err != nil {
		if os.IsPermission(err) {
			return nil, newError(KindAuthorizationDenied, "access to %s denied: %v", location, err)
		}
		return nil, newError(KindSourceUnavailable, "store %s unreachable: %v", location, err)
	}
	refs := map[string]string{}
	if err := yaml.Unmarshal(data, &refs); err != nil {
		return nil, newError(KindSourceUnavailable, "store %s has malformed refs: %v", location, err)
	}
	return refs, nil
}

func loadDocuments(root string) ([]Document, error) {
	var docs []Document
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isManifestFile(p) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		docs = append(docs, Document{Path: rel, Data: data})
		return nil
	})
	if err != nil {
		if os.IsPermission(err) {
			return nil, newError(KindAuthorizationDenied, "access to %s denied: %v", root, err)
		}
		if os.IsNotExist(err) {
			return nil, newError(KindRevisionNotFound, "revision tree %s missing: %v", root, err)
		}
		return nil, newError(KindSourceUnavailable, "failed to read %s: %v", root, err)
	}
	// Walk already yields lexical order, keep it explicit for diff stability.
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func isManifestFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
