package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/buildsvc"
	configs "github.com/tencentblueking/bkpaas-core/pkg/configs/core"
	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	apppg "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db/postgres"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/allocator"
	clusterpg "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db/postgres"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/k8s"
	deppg "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db/postgres"
	fieldpg "github.com/tencentblueking/bkpaas-core/pkg/domain/fieldmgr/db/postgres"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/schema"
	"github.com/tencentblueking/bkpaas-core/pkg/importer"
	"github.com/tencentblueking/bkpaas-core/pkg/loop"
	"github.com/tencentblueking/bkpaas-core/pkg/objstore"
	"github.com/tencentblueking/bkpaas-core/pkg/pipeline"
	"github.com/tencentblueking/bkpaas-core/pkg/sourceexport"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/filewatch"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/try"
)

// queueIdleInterval paces the pending-deployment scan when the queue
// is empty.
const queueIdleInterval = 3 * time.Second

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM,
	)
	defer cancel()

	pconfig := flag.String(
		"config", os.Getenv("BKPAAS_CORE_CONFIG"), "path to config file",
	)
	flag.Parse()

	{
		// restart on config change; the supervisor brings us back up.
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, *pconfig)
		if err != nil {
			logger.Fatal(err)
		}
		defer cancel()
		ctx = wctx
	}

	conf := try.To(configs.LoadCoreConfig(*pconfig)).OrFatal(logger)

	p := try.To(pool.New(ctx, conf.Database())).OrFatal(logger)
	defer p.Close()
	if err := schema.Apply(ctx, p); err != nil {
		logger.Fatal(err)
	}

	fields := fieldpg.New()
	apps := apppg.New(p, fields)
	clusters := clusterpg.New(p)
	deployments := deppg.New(p)
	store := try.To(objstore.New(conf.ObjStore().AsStoreConfig())).OrFatal(logger)

	pipe := &pipeline.Pipeline{
		Deployments: deployments,
		Apps:        apps,
		Clusters:    clusters,
		Allocator:   allocator.New(clusters),
		Kube:        k8s.NewFactory(clusters, conf.ClusterCacheTTL()),
		Builds:      buildsvc.New(conf.BuildServiceURL(), nil),
		Store:       store,
		Importer:    importer.New(apps),
		Exporters:   exporters(conf.SourceServiceURL()),
		Config:      conf.Pipeline().AsPipelineConfig(),
		Logger:      logger,
	}

	logger.Printf("start deployment worker")
	_, err := loop.Start(ctx, struct{}{}, func(ctx context.Context, s struct{}) (struct{}, loop.Next) {
		pending, err := pipe.Deployments.ListPending(ctx)
		if err != nil {
			return s, loop.Break(err)
		}
		if len(pending) == 0 {
			return s, loop.Continue(queueIdleInterval)
		}
		for _, d := range pending {
			if err := pipe.Run(ctx, d.ID); err != nil {
				if errors.Is(err, context.Canceled) {
					return s, loop.Break(err)
				}
				// Run closed the deployment; log and move on.
				logger.Printf("deployment %s: %v", d.ID, err)
			}
		}
		return s, loop.Continue(0)
	})

	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Fatal(err, " (worker context is cancelled by: ", context.Cause(ctx), ")")
	}
	logger.Fatal(err)
}

// exporters resolves source exporters per module, all backed by the
// external source repository service.
func exporters(sourceServiceURL string) pipeline.ExporterFactory {
	vcs := sourceexport.NewVCSClient(sourceServiceURL, nil)
	packages := sourceexport.NewPackageStore(sourceServiceURL, nil)
	return func(app domain.Application, module domain.Module) (sourceexport.Exporter, error) {
		return sourceexport.ForOrigin(module.SourceOrigin, app.Code, module.Name, vcs, packages)
	}
}
