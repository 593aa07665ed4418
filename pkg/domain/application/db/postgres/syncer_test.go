package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	fieldmgr "github.com/tencentblueking/bkpaas-core/pkg/domain/fieldmgr/db"
)

type fakeFields struct {
	records map[domain.FieldKey]domain.FieldManager
}

var _ fieldmgr.Registry = &fakeFields{}

func (f *fakeFields) ManagerOf(
	_ context.Context, _ pool.Tx, _ string, field domain.FieldKey,
) (domain.FieldManager, bool, error) {
	m, ok := f.records[field]
	return m, ok, nil
}

func (f *fakeFields) Record(
	_ context.Context, _ pool.Tx, _ string, field domain.FieldKey, manager domain.FieldManager,
) error {
	f.records[field] = manager
	return nil
}

func (f *fakeFields) Forget(
	_ context.Context, _ pool.Tx, _ string, field domain.FieldKey,
) error {
	delete(f.records, field)
	return nil
}

func (f *fakeFields) ListByModule(
	_ context.Context, _ pool.Tx, _ string,
) ([]domain.FieldManagementRecord, error) {
	return nil, nil
}

type execCall struct {
	sql  string
	args []interface{}
}

// fakeTx serves the process-spec select from a fixed slice and
// records every Exec.
type fakeTx struct {
	specs []domain.ModuleProcessSpec
	execs []execCall
}

var _ pool.Tx = &fakeTx{}

func (tx *fakeTx) Exec(
	_ context.Context, sql string, arguments ...interface{},
) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, execCall{sql: sql, args: arguments})
	return nil, nil
}

func (tx *fakeTx) Query(_ context.Context, sql string, _ ...interface{}) (pgx.Rows, error) {
	return &specRows{specs: tx.specs}, nil
}

func (tx *fakeTx) QueryRow(_ context.Context, _ string, _ ...interface{}) pgx.Row {
	return nil
}

func (tx *fakeTx) Begin(_ context.Context) (pool.Tx, error) { return tx, nil }
func (tx *fakeTx) Commit(_ context.Context) error           { return nil }
func (tx *fakeTx) Rollback(_ context.Context) error         { return nil }

func (tx *fakeTx) execsMatching(fragment string) []execCall {
	found := []execCall{}
	for _, e := range tx.execs {
		if strings.Contains(e.sql, fragment) {
			found = append(found, e)
		}
	}
	return found
}

type specRows struct {
	pgx.Rows
	specs []domain.ModuleProcessSpec
	idx   int
}

func (r *specRows) Close()     {}
func (r *specRows) Err() error { return nil }

func (r *specRows) Next() bool {
	r.idx++
	return r.idx <= len(r.specs)
}

func (r *specRows) Scan(dest ...interface{}) error {
	s := r.specs[r.idx-1]
	*(dest[0].(*string)) = s.ID
	*(dest[1].(*string)) = s.ModuleID
	*(dest[2].(*string)) = s.Name
	*(dest[5].(*string)) = s.ProcCommand
	*(dest[6].(*int32)) = s.TargetPort
	*(dest[7].(*domain.ResQuotaPlan)) = s.Plan
	*(dest[8].(*int)) = s.TargetReplicas
	*(dest[9].(*bool)) = s.AutoscalingEnabled
	for _, col := range []struct {
		at int
		v  interface{}
	}{
		{3, s.Command}, {4, s.Args},
		{10, s.Autoscaling}, {11, s.Probes}, {12, s.Services},
	} {
		j, err := jsonb(col.v)
		if err != nil {
			return err
		}
		*(dest[col.at].(*pgtype.JSONB)) = j
	}
	return nil
}

func webSpec() domain.ModuleProcessSpec {
	return domain.ModuleProcessSpec{
		ID: "spec-1", ModuleID: "module-1", Name: "web",
		ProcCommand:    "python manage.py runserver",
		TargetPort:     8000,
		Plan:           domain.PlanDefault,
		TargetReplicas: 2,
		Probes: domain.ProbeSet{
			Liveness: &domain.Probe{
				Handler:       domain.ProbeHandler{HTTPGet: &domain.HTTPGetAction{Path: "/healthz", Port: 8000}},
				PeriodSeconds: 10,
			},
		},
	}
}

func TestSyncProcesses(t *testing.T) {
	ctx := context.Background()
	newTestee := func(existing ...domain.ModuleProcessSpec) (*syncer, *fakeTx, *fakeFields) {
		fields := &fakeFields{records: map[domain.FieldKey]domain.FieldManager{}}
		return &syncer{fields: fields}, &fakeTx{specs: existing}, fields
	}

	t.Run("an unchanged spec writes nothing", func(t *testing.T) {
		testee, tx, _ := newTestee(webSpec())
		err := testee.SyncProcesses(
			ctx, tx, "module-1",
			[]domain.ModuleProcessSpec{webSpec()}, domain.ManagerAppDescriptor,
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := tx.execsMatching(`update "module_process_spec"`); len(got) != 0 {
			t.Errorf("unexpected updates: %v", got)
		}
		if got := tx.execsMatching(`insert into "module_process_spec"`); len(got) != 0 {
			t.Errorf("unexpected inserts: %v", got)
		}
	})

	t.Run("a probe-only change is persisted", func(t *testing.T) {
		testee, tx, _ := newTestee(webSpec())
		next := webSpec()
		next.Probes.Liveness.PeriodSeconds = 30
		err := testee.SyncProcesses(
			ctx, tx, "module-1",
			[]domain.ModuleProcessSpec{next}, domain.ManagerAppDescriptor,
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := tx.execsMatching(`update "module_process_spec"`); len(got) != 1 {
			t.Errorf("expected one update, got %d", len(got))
		}
	})

	t.Run("an added probe is persisted", func(t *testing.T) {
		testee, tx, _ := newTestee(webSpec())
		next := webSpec()
		next.Probes.Readiness = &domain.Probe{
			Handler: domain.ProbeHandler{TCPSocket: &domain.TCPSocketAction{Port: 8000}},
		}
		err := testee.SyncProcesses(
			ctx, tx, "module-1",
			[]domain.ModuleProcessSpec{next}, domain.ManagerAppDescriptor,
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := tx.execsMatching(`update "module_process_spec"`); len(got) != 1 {
			t.Errorf("expected one update, got %d", len(got))
		}
	})

	t.Run("undeclared processes are dropped", func(t *testing.T) {
		worker := webSpec()
		worker.ID, worker.Name = "spec-2", "worker"
		testee, tx, _ := newTestee(webSpec(), worker)
		err := testee.SyncProcesses(
			ctx, tx, "module-1",
			[]domain.ModuleProcessSpec{webSpec()}, domain.ManagerAppDescriptor,
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		deletes := tx.execsMatching(`delete from "module_process_spec" where "id"`)
		if len(deletes) != 1 || deletes[0].args[0] != "spec-2" {
			t.Errorf("unexpected deletes: %v", deletes)
		}
	})
}

func TestSyncProcesses_absentField(t *testing.T) {
	ctx := context.Background()

	theory := func(
		recorded map[domain.FieldKey]domain.FieldManager,
		wantDeletes int, wantRecorded bool,
	) func(*testing.T) {
		return func(t *testing.T) {
			fields := &fakeFields{records: recorded}
			testee := &syncer{fields: fields}
			tx := &fakeTx{specs: []domain.ModuleProcessSpec{webSpec()}}

			err := testee.SyncProcesses(ctx, tx, "module-1", nil, domain.ManagerAppDescriptor)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			deletes := tx.execsMatching(`delete from "module_process_spec"`)
			if len(deletes) != wantDeletes {
				t.Errorf("expected %d deletes, got %d", wantDeletes, len(deletes))
			}
			_, stillRecorded := fields.records[domain.FieldProcesses]
			if stillRecorded != wantRecorded {
				t.Errorf("field record retained = %v, want %v", stillRecorded, wantRecorded)
			}
		}
	}

	t.Run(
		"the recording manager resets its own field",
		theory(
			map[domain.FieldKey]domain.FieldManager{
				domain.FieldProcesses: domain.ManagerAppDescriptor,
			},
			1, false,
		),
	)
	t.Run(
		"another manager's field is preserved",
		theory(
			map[domain.FieldKey]domain.FieldManager{
				domain.FieldProcesses: domain.ManagerWebForm,
			},
			0, true,
		),
	)
	t.Run(
		"an unrecorded field is preserved",
		theory(map[domain.FieldKey]domain.FieldManager{}, 0, false),
	)
}
