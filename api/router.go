package api

import (
	"github.com/gin-gonic/gin"

	"github.com/NordicHPC/sonar/api/handlers"
	"github.com/NordicHPC/sonar/internal/aggregate"
	"github.com/NordicHPC/sonar/internal/config"
)

// SetupRouter exposes one aggregation run over HTTP. The accumulator is
// read-only from here on.
func SetupRouter(acc *aggregate.Accumulator, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api")
	{
		api.GET("/reports/v1/summary", handlers.SummaryHandler(acc, cfg))
		api.GET("/reports/v1/rollup", handlers.RollupHandler(acc, cfg))
	}

	return r
}
