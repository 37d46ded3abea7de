package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsdeck/deployd/internal/deploy/model"
	"github.com/opsdeck/deployd/internal/metrics"
	"github.com/opsdeck/deployd/internal/registry"
)

func (api *Api) listServers(c *gin.Context) {
	targets := api.registry.List()
	out := make([]registry.PublicTarget, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Public())
	}
	c.JSON(http.StatusOK, out)
}

type pingRequest struct {
	Server string `json:"server" binding:"required"`
}

func (api *Api) pingServer(c *gin.Context) {
	var req pingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(model.CodeBadRequest, "server is required"))
		return
	}

	target, err := api.registry.Resolve(req.Server)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(model.CodeNotFound, "unknown target: "+req.Server))
		return
	}

	if res := api.prober.Probe(c.Request.Context(), target); !res.Reachable {
		c.JSON(http.StatusOK, gin.H{"status": "fail"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type triggerRequest struct {
	Token  string `json:"token"`
	Server string `json:"server" binding:"required"`
}

func (api *Api) triggerDeploy(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(model.CodeBadRequest, "server is required"))
		return
	}

	// The deploy token is an opaque shared secret. An unset server-side token
	// disables triggering outright rather than opening it up.
	if api.token == "" || req.Token != api.token {
		metrics.TriggerRejections.WithLabelValues(model.CodeUnauthorized).Inc()
		c.JSON(http.StatusUnauthorized, model.NewErrorResponse(model.CodeUnauthorized, "invalid deploy token"))
		return
	}

	job, err := api.orch.Trigger(c.Request.Context(), req.Server)
	if err != nil {
		var unreachable *model.UnreachableError
		switch {
		case errors.Is(err, registry.ErrTargetNotFound):
			metrics.TriggerRejections.WithLabelValues(model.CodeNotFound).Inc()
			c.JSON(http.StatusNotFound, model.NewErrorResponse(model.CodeNotFound, "unknown target: "+req.Server))
		case errors.Is(err, model.ErrNoPath):
			// Registered but not deployable: explicit no-op, not an error.
			c.JSON(http.StatusOK, gin.H{"status": "noop", "reason": "no path defined for target"})
		case errors.Is(err, model.ErrConflict):
			metrics.TriggerRejections.WithLabelValues(model.CodeConflict).Inc()
			c.JSON(http.StatusConflict, model.NewErrorResponse(model.CodeConflict, "deployment already in progress for "+req.Server))
		case errors.As(err, &unreachable):
			resp := model.NewErrorResponse(model.CodeUnreachable, "target unreachable: "+unreachable.Reason)
			resp.Error.Target = unreachable.Target
			c.JSON(http.StatusBadGateway, resp)
		default:
			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(model.CodeExecutionFailed, err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"job_id":         job.ID,
		"log_file":       job.LogFile,
		"stream_log_url": "/stream-log?file=" + job.LogFile,
	})
}

func (api *Api) listDeployments(c *gin.Context) {
	c.JSON(http.StatusOK, api.orch.Jobs())
}

func (api *Api) getDeployment(c *gin.Context) {
	job, ok := api.orch.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(model.CodeNotFound, "unknown deployment"))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (api *Api) servicesStatus(c *gin.Context) {
	c.JSON(http.StatusOK, api.monitor.CurrentStatus())
}
