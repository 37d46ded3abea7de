package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opsdeck/deployd/internal/deploy/service"
	"github.com/opsdeck/deployd/internal/logstore"
	"github.com/opsdeck/deployd/internal/monitor"
	"github.com/opsdeck/deployd/internal/registry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Api wires the HTTP surface to the deployment and monitoring subsystems.
type Api struct {
	registry *registry.Registry
	orch     *service.Orchestrator
	prober   service.Prober
	store    *logstore.Store
	streamer *logstore.Streamer
	monitor  *monitor.Monitor
	token    string
}

type Deps struct {
	Registry *registry.Registry
	Orch     *service.Orchestrator
	Prober   service.Prober
	Store    *logstore.Store
	Streamer *logstore.Streamer
	Monitor  *monitor.Monitor
	Token    string
}

func NewApi(router *gin.Engine, deps Deps) *Api {
	api := &Api{
		registry: deps.Registry,
		orch:     deps.Orch,
		prober:   deps.Prober,
		store:    deps.Store,
		streamer: deps.Streamer,
		monitor:  deps.Monitor,
		token:    deps.Token,
	}
	api.setupRouters(router)
	return api
}

func (api *Api) setupRouters(router *gin.Engine) {
	router.GET("/servers", api.listServers)
	router.POST("/ping", api.pingServer)
	router.POST("/trigger", api.triggerDeploy)

	router.GET("/stream-log", api.streamLog)
	router.GET("/logs", api.listLogs)
	router.GET("/logs/:file", api.logContentRaw)
	router.GET("/log-content", api.logContent)

	router.GET("/deployments", api.listDeployments)
	router.GET("/deployments/:id", api.getDeployment)

	router.GET("/api/services/status", api.servicesStatus)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
