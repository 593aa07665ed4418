// Package importer applies parsed BkApp descriptors to the module model.
package importer

import (
	"context"

	"github.com/tencentblueking/bkpaas-core/pkg/descriptor"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	appdb "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db"
)

// Importer reconciles a descriptor's ModuleState into persisted module
// rows. All syncers run in one transaction: either the whole document
// lands, or none of it does.
type Importer interface {
	Apply(ctx context.Context, applicationID string, moduleID string, state *descriptor.ModuleState, manager domain.FieldManager) error
}

type importer struct {
	apps appdb.Interface
}

func New(apps appdb.Interface) Importer {
	return &importer{apps: apps}
}

func (im *importer) Apply(
	ctx context.Context,
	applicationID string, moduleID string,
	state *descriptor.ModuleState,
	manager domain.FieldManager,
) error {
	tx, err := im.apps.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sync := im.apps.Syncer()

	// processes go first: overlays reference their rows.
	if err := sync.SyncProcesses(ctx, tx, moduleID, state.Processes, manager); err != nil {
		return err
	}
	if err := sync.SyncHooks(ctx, tx, moduleID, state.Hooks, manager); err != nil {
		return err
	}
	if err := sync.SyncEnvVars(ctx, tx, moduleID, state.EnvVars, manager); err != nil {
		return err
	}
	if err := sync.SyncMounts(ctx, tx, moduleID, state.Mounts, manager); err != nil {
		return err
	}
	if err := sync.SyncSvcDiscovery(ctx, tx, applicationID, moduleID, state.SvcDiscovery, manager); err != nil {
		return err
	}
	if err := sync.SyncDomainResolution(ctx, tx, applicationID, moduleID, state.DomainResolution, manager); err != nil {
		return err
	}
	if err := sync.SyncEnvOverlays(ctx, tx, moduleID, state.Overlays, manager); err != nil {
		return err
	}
	if err := sync.SyncObservability(ctx, tx, moduleID, state.Observability, manager); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
