package cluster

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"

	"github.com/namix-io/reconciler/pkg/utils/kube"
)

// Interface is the controller's view of the target cluster API.
type Interface interface {
	// Get returns the live resource or a NotFound error.
	Get(ctx context.Context, gvk schema.GroupVersionKind, namespace string, name string) (*unstructured.Unstructured, error)
	// Apply creates or patches the resource to match obj.
	Apply(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	// Delete removes the resource, NotFound is returned as-is.
	Delete(ctx context.Context, gvk schema.GroupVersionKind, namespace string, name string) error
	// List returns resources of the given kind carrying the tracking
	// annotation of the named application.
	ListOwned(ctx context.Context, gvk schema.GroupVersionKind, namespace string, app string) ([]*unstructured.Unstructured, error)
}

type dynamicCluster struct {
	client dynamic.Interface
	mapper meta.RESTMapper
	log    logr.Logger
}

// New builds a cluster client from a rest.Config using server-side apply
// through the dynamic client.
func New(config *rest.Config, log logr.Logger) (Interface, error) {
	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	disco, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	groupResources, err := restmapper.GetAPIGroupResources(disco)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	return NewWithClient(client, restmapper.NewDiscoveryRESTMapper(groupResources), log), nil
}

// NewWithClient wires an existing dynamic client and RESTMapper, used by
// tests with the dynamic fake.
func NewWithClient(client dynamic.Interface, mapper meta.RESTMapper, log logr.Logger) Interface {
	return &dynamicCluster{client: client, mapper: mapper, log: log}
}

func (c *dynamicCluster) resourceFor(gvk schema.GroupVersionKind, namespace string) (dynamic.ResourceInterface, error) {
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, &ReadError{Err: fmt.Errorf("no mapping for %s: %w", gvk, err)}
	}
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		return c.client.Resource(mapping.Resource).Namespace(namespace), nil
	}
	return c.client.Resource(mapping.Resource), nil
}

func (c *dynamicCluster) Get(ctx context.Context, gvk schema.GroupVersionKind, namespace string, name string) (*unstructured.Unstructured, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}
	obj, err := res.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classifyAPIError(err)
	}
	return obj, nil
}

func (c *dynamicCluster) Apply(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	res, err := c.resourceFor(obj.GroupVersionKind(), obj.GetNamespace())
	if err != nil {
		return nil, err
	}
	live, err := res.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		if !IsNotFound(err) {
			return nil, classifyAPIError(err)
		}
		created, err := res.Create(ctx, obj, metav1.CreateOptions{})
		if err != nil {
			return nil, classifyAPIError(err)
		}
		c.log.V(1).Info("Created resource", "key", kube.GetResourceKey(obj))
		return created, nil
	}
	// update path: carry the live resourceVersion so the API server can
	// detect conflicting writers
	desired := obj.DeepCopy()
	desired.SetResourceVersion(live.GetResourceVersion())
	updated, err := res.Update(ctx, desired, metav1.UpdateOptions{})
	if err != nil {
		return nil, classifyAPIError(err)
	}
	c.log.V(1).Info("Updated resource", "key", kube.GetResourceKey(obj))
	return updated, nil
}

func (c *dynamicCluster) Delete(ctx context.Context, gvk schema.GroupVersionKind, namespace string, name string) error {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return err
	}
	propagation := metav1.DeletePropagationForeground
	if err := res.Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation}); err != nil {
		return classifyAPIError(err)
	}
	c.log.V(1).Info("Deleted resource", "key", kube.NewResourceKey(gvk.Group, gvk.Kind, namespace, name))
	return nil
}

func (c *dynamicCluster) ListOwned(ctx context.Context, gvk schema.GroupVersionKind, namespace string, app string) ([]*unstructured.Unstructured, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}
	list, err := res.List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classifyAPIError(err)
	}
	var owned []*unstructured.Unstructured
	for i := range list.Items {
		item := &list.Items[i]
		if kube.GetAppInstance(item) == app {
			owned = append(owned, item.DeepCopy())
		}
	}
	return owned, nil
}
