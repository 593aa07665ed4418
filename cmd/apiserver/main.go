package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"

	configs "github.com/tencentblueking/bkpaas-core/pkg/configs/core"
	"github.com/tencentblueking/bkpaas-core/pkg/conn/postgres/pool"
	apppg "github.com/tencentblueking/bkpaas-core/pkg/domain/application/db/postgres"
	clusterpg "github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/db/postgres"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/cluster/k8s"
	deppg "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db/postgres"
	fieldpg "github.com/tencentblueking/bkpaas-core/pkg/domain/fieldmgr/db/postgres"
	"github.com/tencentblueking/bkpaas-core/pkg/domain/schema"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/filewatch"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/try"

	"github.com/tencentblueking/bkpaas-core/cmd/apiserver/handlers"
)

const (
	watchStreamPath  = "/api/streams/processes/"
	deployStreamPath = "/api/streams/deployments/"
)

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill, syscall.SIGTERM,
	)
	defer cancel()

	pconfig := flag.String(
		"config", os.Getenv("BKPAAS_CORE_CONFIG"), "path to config file",
	)
	ploglevel := flag.String("loglevel", "warn", "loglevel of the http server: debug|info|warn|error|off")
	flag.Parse()

	{
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

	apps := apppg.New(p, fieldpg.New())
	clusters := clusterpg.New(p)
	deployments := deppg.New(p)
	controllers := handlers.NewControllerFactory(
		k8s.NewFactory(clusters, conf.ClusterCacheTTL()), apps, logger,
	)
	signer := &handlers.StreamSigner{
		Secret:         []byte(conf.Stream().SigningSecret()),
		Expiry:         conf.Stream().URLExpiry(),
		BasePath:       watchStreamPath,
		DeployBasePath: deployStreamPath,
	}

	e := echo.New()
	switch strings.ToLower(*ploglevel) {
	case "debug":
		e.Logger.SetLevel(glog.DEBUG)
	case "info":
		e.Logger.SetLevel(glog.INFO)
	case "error":
		e.Logger.SetLevel(glog.ERROR)
	case "off":
		e.Logger.SetLevel(glog.OFF)
	default:
		e.Logger.SetLevel(glog.WARN)
	}
	e.Pre(middleware.AddTrailingSlash())
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		e.Logger.Error(err)
	}

	envScope := "/api/applications/:code/modules/:module/envs/:env"
	e.POST(envScope+"/deployments/", handlers.CreateDeploymentHandler(apps, deployments, signer))
	e.GET("/api/deployments/:id/result/", handlers.GetDeploymentResultHandler(deployments))
	e.POST("/api/deployments/:id/interruptions/", handlers.InterruptDeploymentHandler(deployments))
	e.GET(deployStreamPath, handlers.WatchDeploymentHandler(deployments, signer, 0))

	e.GET(envScope+"/processes/", handlers.ListProcessesHandler(apps, controllers, signer))
	e.PUT(envScope+"/processes/:process/", handlers.UpdateProcessHandler(apps, controllers))
	e.GET(watchStreamPath, handlers.WatchProcessesHandler(apps, controllers, signer))

	context.AfterFunc(ctx, func() {
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			logger.Printf("error on shutdown: %s", err)
		}
	})

	if err := e.Start(fmt.Sprintf(":%d", conf.Port())); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
}
