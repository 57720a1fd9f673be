package eta

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/taxi-eta/pkg/geo"
	"github.com/richxcame/taxi-eta/pkg/redis"
)

// historicalCacheTTL mirrors the teacher's 24h route-cache TTL
// (internal/mleta/service.go getHistoricalETA).
const historicalCacheTTL = 24 * time.Hour

// historicalCacheResolution buckets routes at the H3 "surge zone"
// resolution (~460m edge) so nearby pickups/dropoffs share a cache entry —
// replacing the teacher's manual lat/lon-rounding key scheme.
const historicalCacheResolution = geo.H3ResolutionSurge

// PredictionRecord is a persisted prediction, stored off the hot path for
// read-only analytics (§1: "relational trip-history store... not on the
// prediction hot path").
type PredictionRecord struct {
	ID                  int64
	PickupLatitude      float64
	PickupLongitude     float64
	DropoffLatitude     float64
	DropoffLongitude    float64
	PredictedMinutes    float64
	ConfidenceScore     float64
	ModelVersion        string
	PredictionTimestamp time.Time
}

// Repository persists predictions to Postgres for analytics and caches
// historical route durations in Redis, grounded on the teacher's
// internal/mleta/repository.go. Neither store is consulted from the
// prediction hot path (§1, §5).
type Repository struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

// NewRepository constructs a Repository. Either dependency may be nil, in
// which case the corresponding operation becomes a no-op — analytics
// persistence is best-effort and must never block a prediction response.
func NewRepository(db *pgxpool.Pool, redisClient *redis.Client) *Repository {
	return &Repository{db: db, redis: redisClient}
}

// StorePrediction records a prediction for later analytics queries. Called
// asynchronously (fire-and-forget) by the handler so it never adds latency
// to the hot path, mirroring the teacher's storePrediction goroutine.
func (r *Repository) StorePrediction(ctx context.Context, p *PredictionRecord, req PredictionRequest) error {
	if r.db == nil {
		return nil
	}

	query := `
		INSERT INTO eta_predictions
			(pickup_latitude, pickup_longitude, dropoff_latitude, dropoff_longitude,
			 predicted_minutes, confidence_score, model_version, prediction_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return r.db.QueryRow(ctx, query,
		p.PickupLatitude, p.PickupLongitude, p.DropoffLatitude, p.DropoffLongitude,
		p.PredictedMinutes, p.ConfidenceScore, p.ModelVersion, p.PredictionTimestamp,
	).Scan(&p.ID)
}

// GetHistoricalDuration looks up a cached average duration for the H3 cell
// pair nearest the requested route, checking Redis first and falling back
// to a Postgres aggregation over recorded predictions. Returns (0, false)
// when no history exists — callers treat that as "no historical signal,"
// not an error.
func (r *Repository) GetHistoricalDuration(ctx context.Context, pickupLat, pickupLon, dropoffLat, dropoffLon float64) (float64, bool) {
	key := r.routeCacheKey(pickupLat, pickupLon, dropoffLat, dropoffLon)

	if r.redis != nil {
		if cached, err := r.redis.GetString(ctx, key); err == nil && cached != "" {
			var minutes float64
			if _, err := fmt.Sscanf(cached, "%f", &minutes); err == nil {
				return minutes, true
			}
		}
	}

	if r.db == nil {
		return 0, false
	}

	pickupCell := geo.LatLngToCell(pickupLat, pickupLon, historicalCacheResolution)
	dropoffCell := geo.LatLngToCell(dropoffLat, dropoffLon, historicalCacheResolution)
	pickupCenterLat, pickupCenterLon := geo.CellToLatLng(pickupCell)
	dropoffCenterLat, dropoffCenterLon := geo.CellToLatLng(dropoffCell)

	query := `
		SELECT AVG(predicted_minutes) FROM eta_predictions
		WHERE ABS(pickup_latitude - $1) < 0.02 AND ABS(pickup_longitude - $2) < 0.02
		  AND ABS(dropoff_latitude - $3) < 0.02 AND ABS(dropoff_longitude - $4) < 0.02
		  AND prediction_timestamp > NOW() - INTERVAL '90 days'`

	var minutes *float64
	if err := r.db.QueryRow(ctx, query, pickupCenterLat, pickupCenterLon, dropoffCenterLat, dropoffCenterLon).Scan(&minutes); err != nil || minutes == nil {
		return 0, false
	}

	if r.redis != nil {
		_ = r.redis.SetWithExpiration(ctx, key, fmt.Sprintf("%f", *minutes), historicalCacheTTL)
	}

	return *minutes, true
}

func (r *Repository) routeCacheKey(pickupLat, pickupLon, dropoffLat, dropoffLon float64) string {
	pickupCell := geo.LatLngToCell(pickupLat, pickupLon, historicalCacheResolution)
	dropoffCell := geo.LatLngToCell(dropoffLat, dropoffLon, historicalCacheResolution)
	return fmt.Sprintf("eta:route:%s:%s", geo.CellToString(pickupCell), geo.CellToString(dropoffCell))
}

// PredictionPage is a page of recorded predictions for the analytics
// endpoints (SPEC_FULL.md SUPPLEMENTED FEATURES §1).
type PredictionPage struct {
	Records []PredictionRecord
	Total   int
}

// GetPredictionHistory returns a paginated slice of recorded predictions,
// newest first.
func (r *Repository) GetPredictionHistory(ctx context.Context, limit, offset int) (PredictionPage, error) {
	if r == nil || r.db == nil {
		return PredictionPage{}, nil
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM eta_predictions`).Scan(&total); err != nil {
		return PredictionPage{}, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, pickup_latitude, pickup_longitude, dropoff_latitude, dropoff_longitude,
		       predicted_minutes, confidence_score, model_version, prediction_timestamp
		FROM eta_predictions
		ORDER BY prediction_timestamp DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return PredictionPage{}, err
	}
	defer rows.Close()

	var records []PredictionRecord
	for rows.Next() {
		var rec PredictionRecord
		if err := rows.Scan(&rec.ID, &rec.PickupLatitude, &rec.PickupLongitude, &rec.DropoffLatitude, &rec.DropoffLongitude,
			&rec.PredictedMinutes, &rec.ConfidenceScore, &rec.ModelVersion, &rec.PredictionTimestamp); err != nil {
			return PredictionPage{}, err
		}
		records = append(records, rec)
	}

	return PredictionPage{Records: records, Total: total}, rows.Err()
}

// AccuracyMetrics summarizes model error against actuals as one aggregate
// over a trailing window of Days days (mirrors the teacher's
// GetAccuracyMetrics).
type AccuracyMetrics struct {
	Days             int     `json:"days"`
	SampleCount      int     `json:"sample_count"`
	MeanAbsoluteError float64 `json:"mean_absolute_error_minutes"`
}

// GetAccuracyMetrics aggregates recorded predictions with known actuals
// over the trailing window. Returns a zero-valued result (not an error)
// when there is no actuals table populated yet — accuracy tracking is an
// optional analytics feature, not part of the prediction hot path.
func (r *Repository) GetAccuracyMetrics(ctx context.Context, days int) (AccuracyMetrics, error) {
	if r == nil || r.db == nil {
		return AccuracyMetrics{Days: days}, nil
	}

	query := `
		SELECT COUNT(*), COALESCE(AVG(ABS(predicted_minutes - actual_minutes)), 0)
		FROM eta_predictions
		WHERE actual_minutes IS NOT NULL
		  AND prediction_timestamp > NOW() - ($1 || ' days')::interval`

	var metrics AccuracyMetrics
	metrics.Days = days
	if err := r.db.QueryRow(ctx, query, fmt.Sprintf("%d", days)).Scan(&metrics.SampleCount, &metrics.MeanAbsoluteError); err != nil {
		return AccuracyMetrics{Days: days}, err
	}

	return metrics, nil
}
