package db

import (
	"context"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

// Registry tracks which manager owns each logical module field.
//
// All methods run inside the caller's transaction: ownership updates are
// co-transactional with the field writes they describe.
type Registry interface {
	// ManagerOf returns the recorded manager of (module, field).
	//
	// The second return value is false when no record exists.
	ManagerOf(ctx context.Context, tx pool.Tx, moduleID string, field domain.FieldKey) (domain.FieldManager, bool, error)

	// Record pins (module, field) to manager, replacing any prior record.
	Record(ctx context.Context, tx pool.Tx, moduleID string, field domain.FieldKey, manager domain.FieldManager) error

	// Forget drops the record of (module, field), if any.
	Forget(ctx context.Context, tx pool.Tx, moduleID string, field domain.FieldKey) error

	// ListByModule returns all records of a module.
	ListByModule(ctx context.Context, tx pool.Tx, moduleID string) ([]domain.FieldManagementRecord, error)
}
