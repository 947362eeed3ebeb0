package inventory

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/alevsk/driftwatch/internal/logger"
)

// APIResource identifies one listable resource type served by the cluster.
type APIResource struct {
	GVR        schema.GroupVersionResource
	Kind       string
	Namespaced bool
}

// Lister is the narrow view of the cluster resource provider the inventory
// needs: resource discovery, namespace discovery and read-only listing.
type Lister interface {
	// ListableResources returns every server resource supporting the list verb.
	ListableResources(ctx context.Context) ([]APIResource, error)
	// Namespaces returns the names of all namespaces in the cluster.
	Namespaces(ctx context.Context) ([]string, error)
	// List returns all objects of the given resource in the given namespace.
	// An empty namespace lists cluster-scoped objects.
	List(ctx context.Context, resource schema.GroupVersionResource, namespace string) (*unstructured.UnstructuredList, error)
}

var namespacesGVR = schema.GroupVersionResource{Version: "v1", Resource: "namespaces"}

// KubeLister implements Lister against a live cluster using the dynamic and
// discovery clients.
type KubeLister struct {
	dynamicClient   dynamic.Interface
	discoveryClient discovery.DiscoveryInterface
}

// NewKubeListerByArgs returns a KubeLister from already-built clients.
func NewKubeListerByArgs(dynamicClient dynamic.Interface, discoveryClient discovery.DiscoveryInterface) *KubeLister {
	return &KubeLister{
		dynamicClient:   dynamicClient,
		discoveryClient: discoveryClient,
	}
}

// NewKubeLister builds a KubeLister from a kubeconfig path. An empty path
// falls back to in-cluster configuration.
func NewKubeLister(kubeconfig string) (*KubeLister, error) {
	var restConfig *rest.Config
	var err error
	if kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load cluster configuration: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create dynamic client: %w", err)
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create discovery client: %w", err)
	}
	return NewKubeListerByArgs(dynamicClient, discoveryClient), nil
}

// ListableResources discovers every preferred server resource that supports
// the list verb.
func (k *KubeLister) ListableResources(ctx context.Context) ([]APIResource, error) {
	apiResourceLists, err := k.discoveryClient.ServerPreferredResources()
	if err != nil {
		return nil, fmt.Errorf("failed to get server api resources: %w", err)
	}

	var resources []APIResource
	for _, list := range apiResourceLists {
		groupVersion, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			logger.Error().Err(err).Str("group-version", list.GroupVersion).Msg("failed to parse group version")
			continue
		}
		for i := range list.APIResources {
			apiResource := list.APIResources[i]
			if !supportsList(apiResource.Verbs) {
				continue
			}
			resources = append(resources, APIResource{
				GVR: schema.GroupVersionResource{
					Group:    groupVersion.Group,
					Version:  groupVersion.Version,
					Resource: apiResource.Name,
				},
				Kind:       apiResource.Kind,
				Namespaced: apiResource.Namespaced,
			})
		}
	}
	return resources, nil
}

// Namespaces lists all namespace names in the cluster.
func (k *KubeLister) Namespaces(ctx context.Context) ([]string, error) {
	list, err := k.dynamicClient.Resource(namespacesGVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("unable to list namespaces: %w", err)
	}
	namespaces := make([]string, 0, len(list.Items))
	for i := range list.Items {
		namespaces = append(namespaces, list.Items[i].GetName())
	}
	return namespaces, nil
}

// List returns all objects of the given resource within a namespace.
func (k *KubeLister) List(ctx context.Context, resource schema.GroupVersionResource, namespace string) (*unstructured.UnstructuredList, error) {
	list, err := k.dynamicClient.Resource(resource).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("unable to list resource %s: %w", resource.Resource, err)
	}
	return list, nil
}

func supportsList(verbs []string) bool {
	for _, verb := range verbs {
		if verb == "list" || verb == "*" {
			return true
		}
	}
	return false
}
