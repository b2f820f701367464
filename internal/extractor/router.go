package extractor

import (
	"github.com/gin-contrib/expvar"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

// Router returns the HTTP endpoints of the service.
func (e *Extractor) Router() *gin.Engine {
	router := gin.New()
	router.Use(sloggin.New(e.log), gin.Recovery())
	router.POST("/", e.ExtractBody)
	router.GET("/", e.ExtractRemote)
	router.HEAD("/", e.ExtractRemote)
	router.GET("/metadata", e.Metadata)
	router.GET("/debug/vars", expvar.Handler())
	return router
}
