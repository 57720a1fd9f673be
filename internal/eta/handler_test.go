package eta

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, root string) (*gin.Engine, *Service) {
	t.Helper()
	scanner := NewScanner(root, "1", "models", zap.NewNop())
	builder := NewFeatureBuilder(manhattanBox())
	service := NewService(scanner, builder, breakerSettingsForTests(), zap.NewNop())
	handler := NewHandler(service, nil, nil)

	router := gin.New()
	router.POST("/api/v1/predict", handler.Predict)
	router.GET("/api/v1/health", handler.Health)
	router.GET("/api/v1/health/model", handler.ModelInfo)
	router.GET("/api/v1/eta/registry/scan", handler.ScanRegistry)
	return router, service
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsDegradedBeforeModelLoaded(t *testing.T) {
	router, _ := newTestRouter(t, t.TempDir())

	rec := doJSON(router, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body healthResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.False(t, body.ModelLoaded)
}

func TestHealthReportsHealthyAfterReload(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "1", "run-a", modelMetadata{RMSE: 1.0, TrainedAt: time.Now().UTC().Format(time.RFC3339), Unit: "minutes"}, true)
	router, service := newTestRouter(t, root)
	_, err := service.Reload()
	require.NoError(t, err)

	rec := doJSON(router, http.MethodGet, "/api/v1/health", nil)
	var body healthResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.ModelLoaded)
}

func TestModelInfoReturns503WhenNotLoaded(t *testing.T) {
	router, _ := newTestRouter(t, t.TempDir())
	rec := doJSON(router, http.MethodGet, "/api/v1/health/model", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestModelInfoReturnsLoadedModelDetails(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "1", "run-abcdefgh12345", modelMetadata{
		RMSE: 2.5, TrainedAt: time.Now().UTC().Format(time.RFC3339),
		FeatureOrder: []string{"distance_km"}, Unit: "minutes",
	}, true)
	router, service := newTestRouter(t, root)
	_, err := service.Reload()
	require.NoError(t, err)

	rec := doJSON(router, http.MethodGet, "/api/v1/health/model", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body modelInfoResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-abcd", body.ModelVersion)
	assert.Equal(t, 2.5, body.RMSE)
}

func TestPredictReturns503WhenNoModelLoaded(t *testing.T) {
	router, _ := newTestRouter(t, t.TempDir())
	rec := doJSON(router, http.MethodPost, "/api/v1/predict", predictRequestDTO{
		PickupLatitude: 40.758, PickupLongitude: -73.9855,
		DropoffLatitude: 40.7614, DropoffLongitude: -73.9776,
		PassengerCount: 1, VendorID: 1,
		PickupDatetime: time.Now().UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPredictReturns400ForOutsideBoundingBox(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "1", "run-a", modelMetadata{RMSE: 1.0, TrainedAt: time.Now().UTC().Format(time.RFC3339), Unit: "minutes"}, true)
	router, service := newTestRouter(t, root)
	_, err := service.Reload()
	require.NoError(t, err)

	rec := doJSON(router, http.MethodPost, "/api/v1/predict", predictRequestDTO{
		PickupLatitude: 41.9, PickupLongitude: -73.9855,
		DropoffLatitude: 40.7614, DropoffLongitude: -73.9776,
		PassengerCount: 1, VendorID: 1,
		PickupDatetime: time.Now().UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body validationErrorDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(OutsideBoundingBox), body.ErrorKind)
}

func TestPredictReturns200WithWellFormedBody(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "1", "run-a", modelMetadata{RMSE: 1.0, TrainedAt: time.Now().UTC().Format(time.RFC3339), Unit: "minutes"}, true)
	router, service := newTestRouter(t, root)
	_, err := service.Reload()
	require.NoError(t, err)

	rec := doJSON(router, http.MethodPost, "/api/v1/predict", predictRequestDTO{
		PickupLatitude: 40.758, PickupLongitude: -73.9855,
		DropoffLatitude: 40.7614, DropoffLongitude: -73.9776,
		PassengerCount: 1, VendorID: 1,
		PickupDatetime: time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body predictResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0.808, body.ConfidenceScore)
	assert.Equal(t, 1, body.FeaturesUsed.IsRushHour)
	assert.NotEmpty(t, body.ModelVersion)
}

func TestScanRegistryReturnsCandidates(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "1", "run-a", modelMetadata{RMSE: 1.0, TrainedAt: time.Now().UTC().Format(time.RFC3339), Unit: "minutes"}, true)
	router, _ := newTestRouter(t, root)

	rec := doJSON(router, http.MethodGet, "/api/v1/eta/registry/scan", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-a")
}
