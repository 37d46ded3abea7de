package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsdeck/deployd/internal/deploy/model"
	"github.com/rs/zerolog/log"
)

func (api *Api) listLogs(c *gin.Context) {
	descs, err := api.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(model.CodeExecutionFailed, err.Error()))
		return
	}
	c.JSON(http.StatusOK, descs)
}

func (api *Api) logContentRaw(c *gin.Context) {
	data, err := api.store.ReadAll(c.Param("file"))
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(model.CodeNotFound, "unknown log file"))
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (api *Api) logContent(c *gin.Context) {
	name := c.Query("file")
	data, err := api.store.ReadAll(name)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(model.CodeNotFound, "unknown log file"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": name, "content": string(data)})
}

// streamLog keeps the response open and flushes each log line as the backing
// file grows. The stream ends when the subscription does: completion marker
// delivered, job terminal and file drained, or client disconnect.
func (api *Api) streamLog(c *gin.Context) {
	name := c.Query("file")
	ch, err := api.streamer.Subscribe(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(model.CodeNotFound, "unknown log file"))
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// The subscription channel closes on completion or when the request
	// context is cancelled, so a disconnected client ends the loop too.
	for line := range ch {
		if _, err := io.WriteString(c.Writer, line+"\n"); err != nil {
			log.Debug().Err(err).Str("file", name).Msg("stream subscriber write failed")
			return
		}
		c.Writer.Flush()
	}
}
