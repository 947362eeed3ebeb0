// Package inventory enumerates live cluster resources into normalized
// records comparable against the manifest index.
package inventory

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alevsk/driftwatch/internal/canonical"
	"github.com/alevsk/driftwatch/internal/config"
	"github.com/alevsk/driftwatch/internal/logger"
	"github.com/alevsk/driftwatch/internal/types"
)

// Inventory enumerates cluster state through a Lister.
type Inventory struct {
	lister Lister
	cfg    *config.Config
}

// New creates an Inventory backed by the given cluster provider.
func New(lister Lister, cfg *config.Config) *Inventory {
	return &Inventory{lister: lister, cfg: cfg}
}

// listTask is one (resource, namespace) listing unit of work.
type listTask struct {
	resource  APIResource
	namespace string
}

// Enumerate lists every audited (namespace, resource) pair in parallel and
// returns normalized live records.
//
// A single pair failing to list degrades to an IncompleteInventory finding
// and the run continues; hitting the overall inventory timeout yields the
// partial results collected so far plus one IncompleteInventory finding.
// Only discovery failure is fatal: without the resource list there is no
// inventory to build at all.
func (inv *Inventory) Enumerate(ctx context.Context) ([]types.LiveResource, []types.Finding, error) {
	if inv.cfg.InventoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.InventoryTimeout)
		defer cancel()
	}

	resources, err := inv.lister.ListableResources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("resource discovery failed: %w", err)
	}
	resources = filterResources(resources, inv.cfg.ExcludeResourceTypes)

	namespaces, err := inv.auditedNamespaces(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("namespace discovery failed: %w", err)
	}

	tasks := buildTasks(resources, namespaces)

	var mu sync.Mutex
	var live []types.LiveResource
	var findings []types.Finding

	group, groupCtx := errgroup.WithContext(ctx)
	limit := inv.cfg.MaxConcurrency
	if limit <= 0 {
		limit = 4
	}
	group.SetLimit(limit)

	for _, task := range tasks {
		group.Go(func() error {
			records, finding := inv.listOne(groupCtx, task)
			mu.Lock()
			defer mu.Unlock()
			live = append(live, records...)
			if finding != nil {
				findings = append(findings, *finding)
			}
			return nil
		})
	}

	// Workers never return errors, so Wait only synchronizes.
	_ = group.Wait()

	if ctx.Err() != nil {
		findings = append(findings, types.Finding{
			ID:          types.FindingID(types.FindingIncompleteInventory, "inventory", "timeout"),
			Kind:        types.FindingIncompleteInventory,
			Locator:     "inventory",
			Description: fmt.Sprintf("inventory enumeration stopped early (%v); results are partial", ctx.Err()),
			Remediation: "raise inventory_timeout or narrow the audited namespaces",
		})
	}

	return live, findings, nil
}

// listOne lists a single (resource, namespace) pair into a private buffer.
func (inv *Inventory) listOne(ctx context.Context, task listTask) ([]types.LiveResource, *types.Finding) {
	locator := task.resource.GVR.Resource
	if task.namespace != "" {
		locator = task.namespace + "/" + task.resource.GVR.Resource
	}

	list, err := inv.lister.List(ctx, task.resource.GVR, task.namespace)
	if err != nil {
		logger.Debug().Err(err).Str("resource", locator).Msg("listing failed")
		return nil, &types.Finding{
			ID:          types.FindingID(types.FindingIncompleteInventory, locator, ""),
			Kind:        types.FindingIncompleteInventory,
			Locator:     locator,
			Description: fmt.Sprintf("failed to list %s in namespace %q: %v", task.resource.Kind, task.namespace, err),
			Remediation: "verify RBAC permissions for the audit service account",
		}
	}

	var records []types.LiveResource
	for i := range list.Items {
		obj := list.Items[i].Object

		key, err := canonical.KeyFromObject(obj)
		if err != nil {
			// The API server never returns identity-less objects.
			logger.Warn().Err(err).Str("resource", locator).Msg("skipping object with invalid identity")
			continue
		}
		canon, err := canonical.Canonicalize(obj, inv.cfg.IgnoreFields)
		if err != nil {
			logger.Warn().Err(err).Str("resource", key.String()).Msg("failed to canonicalize live object")
			continue
		}
		hash, err := canonical.Hash(canon)
		if err != nil {
			logger.Warn().Err(err).Str("resource", key.String()).Msg("failed to hash live object")
			continue
		}
		records = append(records, types.LiveResource{Key: key, SpecHash: hash, Object: canon})
	}
	return records, nil
}

// auditedNamespaces resolves the namespace set: the configured list, or all
// cluster namespaces, minus the configured exclusions.
func (inv *Inventory) auditedNamespaces(ctx context.Context) ([]string, error) {
	namespaces := inv.cfg.Namespaces
	if len(namespaces) == 0 {
		all, err := inv.lister.Namespaces(ctx)
		if err != nil {
			return nil, err
		}
		namespaces = all
	}

	excluded := make(map[string]bool, len(inv.cfg.ExcludeNamespaces))
	for _, ns := range inv.cfg.ExcludeNamespaces {
		excluded[ns] = true
	}

	var audited []string
	for _, ns := range namespaces {
		if !excluded[ns] {
			audited = append(audited, ns)
		}
	}
	return audited, nil
}

func buildTasks(resources []APIResource, namespaces []string) []listTask {
	var tasks []listTask
	for _, resource := range resources {
		if !resource.Namespaced {
			tasks = append(tasks, listTask{resource: resource})
			continue
		}
		for _, ns := range namespaces {
			tasks = append(tasks, listTask{resource: resource, namespace: ns})
		}
	}
	return tasks
}

func filterResources(resources []APIResource, excludeTypes []string) []APIResource {
	excluded := make(map[string]bool, len(excludeTypes))
	for _, typ := range excludeTypes {
		excluded[typ] = true
	}

	var kept []APIResource
	for _, resource := range resources {
		if excluded[resource.GVR.Resource] {
			continue
		}
		kept = append(kept, resource)
	}
	return kept
}
