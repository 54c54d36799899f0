package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NordicHPC/sonar/internal/aggregate"
	"github.com/NordicHPC/sonar/internal/config"
	"github.com/NordicHPC/sonar/internal/report"
)

type SummaryQueryParams struct {
	Cutoff *float64 `form:"cutoff"`
}

type RollupQueryParams struct {
	Granularity string `form:"granularity"`
}

// SummaryHandler handles /api/reports/v1/summary, returning the ranked usage
// summary as JSON, or as the plain-text report when text/plain is requested.
func SummaryHandler(acc *aggregate.Accumulator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params SummaryQueryParams
		if err := c.ShouldBindQuery(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
			return
		}

		cutoff := cfg.PercentageCutoff
		if params.Cutoff != nil {
			if *params.Cutoff < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Cutoff must be non-negative"})
				return
			}
			cutoff = *params.Cutoff
		}

		summary := report.Summarize(acc, cutoff)

		if c.GetHeader("Accept") == "text/plain" {
			var buf bytes.Buffer
			if err := report.WriteSummary(&buf, summary); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render summary: " + err.Error()})
				return
			}
			c.String(http.StatusOK, buf.String())
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": summary})
	}
}

// RollupHandler handles /api/reports/v1/rollup, returning the calendar rollup
// as JSON, or as a delimited table when text/csv is requested.
func RollupHandler(acc *aggregate.Accumulator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params RollupQueryParams
		if err := c.ShouldBindQuery(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
			return
		}

		name := params.Granularity
		if name == "" {
			name = cfg.Granularity
		}
		if name == "" {
			name = string(report.Daily)
		}
		granularity, err := report.ParseGranularity(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		table := report.Rollup(acc, granularity, cfg.DefaultCategory)

		if c.GetHeader("Accept") == "text/csv" {
			var buf bytes.Buffer
			if err := report.WriteRollup(&buf, table, ','); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render rollup: " + err.Error()})
				return
			}
			c.Header("Content-Type", "text/csv")
			c.Header("Content-Disposition", "attachment;filename=rollup.csv")
			c.String(http.StatusOK, buf.String())
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": table})
	}
}
