package eta

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/richxcame/taxi-eta/pkg/async"
	"github.com/richxcame/taxi-eta/pkg/common"
	"github.com/richxcame/taxi-eta/pkg/pagination"
	"github.com/richxcame/taxi-eta/pkg/validation"
)

// Handler is C4: the HTTP surface over the Service (§4.4). The three core
// endpoints below return the literal wire schemas of §6 directly via
// c.JSON, bypassing pkg/common's generic envelope — nothing in §6 leaves
// room for a success/data wrapper. The supplemented analytics and registry
// endpoints have no bit-exact schema mandated, so they reuse the envelope
// and pagination helpers like the rest of the codebase.
type Handler struct {
	service   *Service
	repo      *Repository
	metrics   *RegistryMetrics
	startedAt time.Time
}

// NewHandler constructs a Handler. repo may be nil, in which case history
// persistence and the analytics endpoints degrade to empty results. metrics
// may be nil, in which case registry scans triggered over HTTP go
// unobserved by Prometheus.
func NewHandler(service *Service, repo *Repository, metrics *RegistryMetrics) *Handler {
	return &Handler{service: service, repo: repo, metrics: metrics, startedAt: time.Now()}
}

// predictRequestDTO is the wire shape accepted by POST /predict (§6). The
// pickup_datetime field is bound as RFC3339 text and parsed explicitly so a
// malformed timestamp surfaces as the same InvalidTimestamp ValidationError
// the feature builder would raise for a zero time.Time.
type predictRequestDTO struct {
	PickupLatitude   float64 `json:"pickup_latitude" binding:"required" validate:"latitude"`
	PickupLongitude  float64 `json:"pickup_longitude" binding:"required" validate:"longitude"`
	DropoffLatitude  float64 `json:"dropoff_latitude" binding:"required" validate:"latitude"`
	DropoffLongitude float64 `json:"dropoff_longitude" binding:"required" validate:"longitude"`
	PassengerCount   int     `json:"passenger_count" binding:"required"`
	VendorID         int     `json:"vendor_id"`
	PickupDatetime   string  `json:"pickup_datetime" binding:"required"`
}

// featuresUsedDTO mirrors FeatureVector on the wire (§6 response schema).
type featuresUsedDTO struct {
	DistanceKm     float64 `json:"distance_km"`
	PassengerCount int     `json:"passenger_count"`
	VendorID       int     `json:"vendor_id"`
	HourOfDay      int     `json:"hour_of_day"`
	DayOfWeek      int     `json:"day_of_week"`
	Month          int     `json:"month"`
	IsWeekend      int     `json:"is_weekend"`
	IsRushHour     int     `json:"is_rush_hour"`
}

// predictResponseDTO mirrors §6's POST /predict 200 response exactly.
type predictResponseDTO struct {
	PredictedDurationMinutes float64         `json:"predicted_duration_minutes"`
	ConfidenceScore          float64         `json:"confidence_score"`
	ModelVersion             string          `json:"model_version"`
	PredictionTimestamp      time.Time       `json:"prediction_timestamp"`
	FeaturesUsed             featuresUsedDTO `json:"features_used"`
}

// validationErrorDTO mirrors §6/§7's 400 response shape for a ValidationError.
type validationErrorDTO struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// validationKindForFieldError maps the first failing struct-tag field off a
// validator.ValidationErrors to the §7 error taxonomy, falling back to the
// generic InvalidRequest kind for anything it doesn't recognize (§4.4, §7).
func validationKindForFieldError(err error) ValidationKind {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return InvalidRequest
	}

	switch fieldErrors[0].Field() {
	case "PickupLatitude", "PickupLongitude", "DropoffLatitude", "DropoffLongitude":
		return InvalidCoordinate
	case "PassengerCount":
		return InvalidPassengerCount
	case "PickupDatetime":
		return InvalidTimestamp
	default:
		return InvalidRequest
	}
}

// Predict handles POST /api/v1/predict (§4.4, §6).
func (h *Handler) Predict(c *gin.Context) {
	var dto predictRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, validationErrorDTO{
			ErrorKind: string(InvalidRequest),
			Message:   err.Error(),
		})
		return
	}
	if err := validation.ValidateStruct(&dto); err != nil {
		c.JSON(http.StatusBadRequest, validationErrorDTO{
			ErrorKind: string(validationKindForFieldError(err)),
			Message:   err.Error(),
		})
		return
	}

	pickupDatetime, err := time.Parse(time.RFC3339, dto.PickupDatetime)
	if err != nil {
		c.JSON(http.StatusBadRequest, validationErrorDTO{
			ErrorKind: string(InvalidTimestamp),
			Message:   "pickup_datetime must be RFC3339",
		})
		return
	}

	req := PredictionRequest{
		PickupLatitude:   dto.PickupLatitude,
		PickupLongitude:  dto.PickupLongitude,
		DropoffLatitude:  dto.DropoffLatitude,
		DropoffLongitude: dto.DropoffLongitude,
		PassengerCount:   dto.PassengerCount,
		VendorID:         dto.VendorID,
		PickupDatetime:   pickupDatetime,
	}

	prediction, err := h.service.Predict(c.Request.Context(), req)
	if err != nil {
		h.writePredictError(c, err)
		return
	}

	h.persistAsync(c.Request.Context(), prediction, req)

	c.JSON(http.StatusOK, predictResponseDTO{
		PredictedDurationMinutes: prediction.PredictedDurationMinutes,
		ConfidenceScore:          prediction.ConfidenceScore,
		ModelVersion:             prediction.ModelVersion,
		PredictionTimestamp:      prediction.PredictionTimestamp,
		FeaturesUsed: featuresUsedDTO{
			DistanceKm:     prediction.FeaturesUsed.DistanceKm,
			PassengerCount: prediction.FeaturesUsed.PassengerCount,
			VendorID:       prediction.FeaturesUsed.VendorID,
			HourOfDay:      prediction.FeaturesUsed.HourOfDay,
			DayOfWeek:      prediction.FeaturesUsed.DayOfWeek,
			Month:          prediction.FeaturesUsed.Month,
			IsWeekend:      prediction.FeaturesUsed.IsWeekend,
			IsRushHour:     prediction.FeaturesUsed.IsRushHour,
		},
	})
}

func (h *Handler) writePredictError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *ValidationError:
		c.JSON(http.StatusBadRequest, validationErrorDTO{ErrorKind: string(e.Kind), Message: e.Message})
	case *ErrNotInitialized:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_initialized", "message": e.Error()})
	case *ErrNoModelAvailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no_model_available", "message": e.Error()})
	case *ErrPredictorFault:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "predictor_fault", "message": e.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
	}
}

// persistAsync fires off best-effort analytics persistence without adding
// latency to the hot path (§1, §5), grounded on the teacher's async.Go
// helper for correlation-ID-propagated background work.
func (h *Handler) persistAsync(ctx context.Context, prediction *Prediction, req PredictionRequest) {
	if h.repo == nil {
		return
	}
	record := &PredictionRecord{
		PickupLatitude:      req.PickupLatitude,
		PickupLongitude:     req.PickupLongitude,
		DropoffLatitude:     req.DropoffLatitude,
		DropoffLongitude:    req.DropoffLongitude,
		PredictedMinutes:    prediction.PredictedDurationMinutes,
		ConfidenceScore:     prediction.ConfidenceScore,
		ModelVersion:        prediction.ModelVersion,
		PredictionTimestamp: prediction.PredictionTimestamp,
	}
	async.Go(ctx, "store-prediction", func(taskCtx context.Context) {
		_ = h.repo.StorePrediction(taskCtx, record, req)
	})
}

// healthResponseDTO mirrors §6's GET /health response exactly.
type healthResponseDTO struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health handles GET /api/v1/health (§4.4, §6).
func (h *Handler) Health(c *gin.Context) {
	_, err := h.service.Current()
	loaded := err == nil

	status := "healthy"
	if !loaded {
		status = "degraded"
	}

	c.JSON(http.StatusOK, healthResponseDTO{
		Status:        status,
		ModelLoaded:   loaded,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	})
}

// modelInfoResponseDTO mirrors §6's GET /health/model response exactly.
type modelInfoResponseDTO struct {
	ModelVersion string    `json:"model_version"`
	RMSE         float64   `json:"rmse"`
	LoadedAt     time.Time `json:"loaded_at"`
	FeatureOrder []string  `json:"feature_order"`
}

// ModelInfo handles GET /api/v1/health/model (§4.4, §6).
func (h *Handler) ModelInfo(c *gin.Context) {
	model, err := h.service.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no_model"})
		return
	}

	c.JSON(http.StatusOK, modelInfoResponseDTO{
		ModelVersion: model.Version(),
		RMSE:         model.RMSE,
		LoadedAt:     model.LoadedAt,
		FeatureOrder: model.FeatureOrder,
	})
}

// ScanRegistry handles GET /api/v1/eta/registry/scan, a supplemented
// introspection endpoint over the Scanner (SPEC_FULL.md SUPPLEMENTED
// FEATURES §2) that lets operators see every candidate and why it ranked
// where it did without restarting the service.
func (h *Handler) ScanRegistry(c *gin.Context) {
	scan := h.service.scanner.Scan
	if h.metrics != nil {
		scan = func() (ScanResult, error) { return h.metrics.InstrumentedScan(h.service.scanner.Scan) }
	}

	result, err := scan()
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	common.SuccessResponse(c, result)
}

// PredictionHistory handles GET /api/v1/eta/analytics/predictions, a
// supplemented paginated view over recorded predictions (SPEC_FULL.md
// SUPPLEMENTED FEATURES §1).
func (h *Handler) PredictionHistory(c *gin.Context) {
	params := pagination.ParseParams(c)

	page, err := h.repo.GetPredictionHistory(c.Request.Context(), params.Limit, params.Offset)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	meta := pagination.BuildMeta(params.Limit, params.Offset, int64(page.Total))
	common.SuccessResponseWithMeta(c, page.Records, meta)
}

// AccuracyMetrics handles GET /api/v1/eta/analytics/accuracy, a supplemented
// endpoint summarizing prediction error against recorded actuals
// (SPEC_FULL.md SUPPLEMENTED FEATURES §1).
func (h *Handler) AccuracyMetrics(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	metrics, err := h.repo.GetAccuracyMetrics(c.Request.Context(), days)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	common.SuccessResponse(c, metrics)
}
