package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordicHPC/sonar/internal/aggregate"
	"github.com/NordicHPC/sonar/internal/config"
	"github.com/NordicHPC/sonar/internal/mapping"
	"github.com/NordicHPC/sonar/internal/snapshot"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultCategory:  "UNKNOWN",
		PercentageCutoff: 0.5,
		ServerAddress:    ":8080",
	}
}

func emptyAccumulator() *aggregate.Accumulator {
	classifier := mapping.NewClassifier(&mapping.RuleSet{Exact: map[string]string{}}, "UNKNOWN")
	return aggregate.Aggregate(nil, classifier, aggregate.Options{})
}

func TestSetupRouter(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)

	// Act
	router := SetupRouter(emptyAccumulator(), testConfig())

	// Assert
	require.NotNil(t, router, "Router should not be nil")
	routes := router.Routes()

	expectedRoutes := []struct {
		method string
		path   string
	}{
		{method: "GET", path: "/api/reports/v1/summary"},
		{method: "GET", path: "/api/reports/v1/rollup"},
	}

	for _, expected := range expectedRoutes {
		found := false
		for _, route := range routes {
			if route.Method == expected.method && route.Path == expected.path {
				found = true
				assert.NotNil(t, route.HandlerFunc, "Handler for %s %s should be set", expected.method, expected.path)
				break
			}
		}
		assert.True(t, found, "Route %s %s should be registered", expected.method, expected.path)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rules := &mapping.RuleSet{Exact: map[string]string{"firefox": "Firefox"}}
	classifier := mapping.NewClassifier(rules, "UNKNOWN")
	records := []snapshot.Record{
		{User: "bob", Process: "firefox", CPUPercent: 150.0, CoresOnNode: 64},
	}
	acc := aggregate.Aggregate(records, classifier, aggregate.Options{})
	router := SetupRouter(acc, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports/v1/summary", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Applications []struct {
				Name string `json:"name"`
			} `json:"applications"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Applications, 1)
	assert.Equal(t, "Firefox", body.Data.Applications[0].Name)
}

func TestSummaryEndpointPlainText(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(emptyAccumulator(), testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports/v1/summary", nil)
	req.Header.Set("Accept", "text/plain")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No data")
}

func TestRollupEndpointRejectsBadGranularity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(emptyAccumulator(), testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports/v1/rollup?granularity=hourly", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRollupEndpointCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rules := &mapping.RuleSet{Exact: map[string]string{"firefox": "Firefox"}}
	classifier := mapping.NewClassifier(rules, "UNKNOWN")
	ts, err := time.Parse(time.RFC3339, "2022-10-09T10:00:00+02:00")
	require.NoError(t, err)
	records := []snapshot.Record{
		{Timestamp: ts, User: "bob", Process: "firefox", CPUPercent: 100.0, CoresOnNode: 8},
	}
	acc := aggregate.Aggregate(records, classifier, aggregate.Options{})
	router := SetupRouter(acc, testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports/v1/rollup?granularity=monthly", nil)
	req.Header.Set("Accept", "text/csv")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "month,Firefox,UNKNOWN")
	assert.Contains(t, w.Body.String(), "2022-10,100.00,0.00")
}
