package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	kdb "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

type clusterPG struct {
	pool pool.Pool
}

var _ kdb.Registry = &clusterPG{}

func New(p pool.Pool) kdb.Registry {
	return &clusterPG{pool: p}
}

// jsonb wraps v for use as a jsonb query argument.
func jsonb(v any) (pgtype.JSONB, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return pgtype.JSONB{}, err
	}
	return pgtype.JSONB{Bytes: raw, Status: pgtype.Present}, nil
}

// unjsonb decodes a scanned jsonb column into dest.
//
// SQL null leaves dest untouched.
func unjsonb(col pgtype.JSONB, dest any) error {
	if col.Status != pgtype.Present {
		return nil
	}
	return json.Unmarshal(col.Bytes, dest)
}

const clusterColumns = `
	"name", "region", "is_default_for_region", "api_server_url",
	"auth", "ingress", "allowed_tenant_ids", "feature_flags", "annotations"
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCluster(row rowScanner) (domain.Cluster, error) {
	var c domain.Cluster
	var auth, ingress, tenants, flags, annotations pgtype.JSONB
	if err := row.Scan(
		&c.Name, &c.Region, &c.IsDefaultForRegion, &c.APIServerURL,
		&auth, &ingress, &tenants, &flags, &annotations,
	); err != nil {
		return domain.Cluster{}, err
	}
	if err := unjsonb(auth, &c.Auth); err != nil {
		return domain.Cluster{}, err
	}
	if err := unjsonb(ingress, &c.Ingress); err != nil {
		return domain.Cluster{}, err
	}
	if err := unjsonb(tenants, &c.AllowedTenantIDs); err != nil {
		return domain.Cluster{}, err
	}
	if err := unjsonb(flags, &c.FeatureFlags); err != nil {
		return domain.Cluster{}, err
	}
	if err := unjsonb(annotations, &c.Annotations); err != nil {
		return domain.Cluster{}, err
	}
	return c, nil
}

func (r *clusterPG) Get(ctx context.Context, name string) (domain.Cluster, error) {
	row := r.pool.QueryRow(
		ctx, `select `+clusterColumns+` from "cluster" where "name" = $1`, name,
	)
	c, err := scanCluster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cluster{}, xe.Wrap(fmt.Errorf("%w: cluster '%s'", domain.ErrMissing, name))
	}
	return c, err
}

func (r *clusterPG) ListVisibleTo(ctx context.Context, tenantID string) ([]domain.Cluster, error) {
	rows, err := r.pool.Query(
		ctx,
		`
		select `+clusterColumns+` from "cluster"
		where "allowed_tenant_ids" @> to_jsonb($1::text)
			or "allowed_tenant_ids" @> to_jsonb($2::text)
		order by "name"
		`,
		tenantID, domain.TenantSentinelAll,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clusters := []domain.Cluster{}
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

func (r *clusterPG) DefaultForRegion(ctx context.Context, region string) (domain.Cluster, error) {
	row := r.pool.QueryRow(
		ctx,
		`select `+clusterColumns+` from "cluster" where "region" = $1 and "is_default_for_region"`,
		region,
	)
	c, err := scanCluster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cluster{}, xe.Wrap(fmt.Errorf(
			"%w: no default cluster for region '%s'", domain.ErrMissing, region,
		))
	}
	return c, err
}

func (r *clusterPG) FeatureEnabled(ctx context.Context, name string, flag string) (bool, error) {
	c, err := r.Get(ctx, name)
	if err != nil {
		return false, err
	}
	return c.FeatureFlags[flag], nil
}

func (r *clusterPG) Register(ctx context.Context, c domain.Cluster) error {
	return r.write(ctx, c, false)
}

func (r *clusterPG) Update(ctx context.Context, c domain.Cluster) error {
	return r.write(ctx, c, true)
}

func (r *clusterPG) write(ctx context.Context, c domain.Cluster, update bool) error {
	auth, err := jsonb(c.Auth)
	if err != nil {
		return err
	}
	ingress, err := jsonb(c.Ingress)
	if err != nil {
		return err
	}
	tenants, err := jsonb(c.AllowedTenantIDs)
	if err != nil {
		return err
	}
	flags, err := jsonb(c.FeatureFlags)
	if err != nil {
		return err
	}
	annotations, err := jsonb(c.Annotations)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if c.IsDefaultForRegion {
		// demote any previous default of the same region.
		if _, err := tx.Exec(
			ctx,
			`update "cluster" set "is_default_for_region" = false
			where "region" = $1 and "name" != $2 and "is_default_for_region"`,
			c.Region, c.Name,
		); err != nil {
			return err
		}
	}

	if update {
		tag, err := tx.Exec(
			ctx,
			`
			update "cluster" set
				"region" = $2, "is_default_for_region" = $3, "api_server_url" = $4,
				"auth" = $5, "ingress" = $6, "allowed_tenant_ids" = $7,
				"feature_flags" = $8, "annotations" = $9
			where "name" = $1
			`,
			c.Name, c.Region, c.IsDefaultForRegion, c.APIServerURL,
			auth, ingress, tenants, flags, annotations,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return xe.Wrap(fmt.Errorf("%w: cluster '%s'", domain.ErrMissing, c.Name))
		}
	} else {
		if _, err := tx.Exec(
			ctx,
			`
			insert into "cluster" (`+clusterColumns+`)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`,
			c.Name, c.Region, c.IsDefaultForRegion, c.APIServerURL,
			auth, ingress, tenants, flags, annotations,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *clusterPG) Delete(ctx context.Context, name string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// enumerate referents first so the error names them.
	policies := []string{}
	rows, err := tx.Query(
		ctx,
		`
		select "tenant_id" from "cluster_allocation_policy"
		where "rules"::text like '%' || $1 || '%'
		order by "tenant_id"
		`,
		`"`+name+`"`,
	)
	if err != nil {
		return err
	}
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			rows.Close()
			return err
		}
		policies = append(policies, tenantID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	engineApps := []string{}
	rows, err = tx.Query(
		ctx,
		`select "name" from "engine_app" where "cluster_name" = $1 order by "name"`,
		name,
	)
	if err != nil {
		return err
	}
	for rows.Next() {
		var appName string
		if err := rows.Scan(&appName); err != nil {
			rows.Close()
			return err
		}
		engineApps = append(engineApps, appName)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(policies) != 0 || len(engineApps) != 0 {
		return xe.Wrap(fmt.Errorf(
			"%w: cluster '%s' is referenced by allocation policies [%s] and engine apps [%s]",
			domain.ErrClusterInUse, name,
			strings.Join(policies, ", "), strings.Join(engineApps, ", "),
		))
	}

	tag, err := tx.Exec(ctx, `delete from "cluster" where "name" = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(fmt.Errorf("%w: cluster '%s'", domain.ErrMissing, name))
	}
	return tx.Commit(ctx)
}

func (r *clusterPG) GetPolicy(ctx context.Context, tenantID string) (domain.ClusterAllocationPolicy, error) {
	var policy domain.ClusterAllocationPolicy
	var ptype string
	var rules pgtype.JSONB
	err := r.pool.QueryRow(
		ctx,
		`select "tenant_id", "type", "rules" from "cluster_allocation_policy" where "tenant_id" = $1`,
		tenantID,
	).Scan(&policy.TenantID, &ptype, &rules)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ClusterAllocationPolicy{}, xe.Wrap(fmt.Errorf(
			"%w: tenant '%s'", domain.ErrNoAllocationPolicy, tenantID,
		))
	}
	if err != nil {
		return domain.ClusterAllocationPolicy{}, err
	}
	policy.Type = domain.AllocationPolicyType(ptype)
	if err := unjsonb(rules, &policy.Rules); err != nil {
		return domain.ClusterAllocationPolicy{}, err
	}
	return policy, nil
}

func (r *clusterPG) SetPolicy(ctx context.Context, policy domain.ClusterAllocationPolicy) error {
	rules, err := jsonb(policy.Rules)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(
		ctx,
		`
		insert into "cluster_allocation_policy" ("tenant_id", "type", "rules")
		values ($1, $2, $3)
		on conflict ("tenant_id") do update set
			"type" = excluded."type",
			"rules" = excluded."rules"
		`,
		policy.TenantID, string(policy.Type), rules,
	)
	return err
}
