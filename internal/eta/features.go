package eta

import (
	"math"
	"time"
)

// earthRadiusKm is the Earth radius used by the haversine calculation
// (§4.1, GLOSSARY "Haversine distance").
const earthRadiusKm = 6371.0

// maxDistanceKm is the hard cap beyond which a trip is rejected rather than
// predicted (§4.1: "clamped to [0, 200]... anything larger is a validation
// failure").
const maxDistanceKm = 200.0

// rushHours is the fixed set of hour_of_day values considered rush hour
// (§3 FeatureVector).
var rushHours = map[int]bool{7: true, 8: true, 9: true, 17: true, 18: true, 19: true}

// PredictionRequest is the transient input to the Feature Builder (§3).
type PredictionRequest struct {
	PickupLatitude   float64   `json:"pickup_latitude"`
	PickupLongitude  float64   `json:"pickup_longitude"`
	DropoffLatitude  float64   `json:"dropoff_latitude"`
	DropoffLongitude float64   `json:"dropoff_longitude"`
	PassengerCount   int       `json:"passenger_count"`
	VendorID         int       `json:"vendor_id"`
	PickupDatetime   time.Time `json:"pickup_datetime"`
}

// FeatureVector is the ordered 8-tuple derived from a PredictionRequest
// (§3). Its field order is part of the external contract with trained
// models and must never change without a corresponding registry migration.
type FeatureVector struct {
	DistanceKm     float64 `json:"distance_km"`
	PassengerCount int     `json:"passenger_count"`
	VendorID       int     `json:"vendor_id"`
	HourOfDay      int     `json:"hour_of_day"`
	DayOfWeek      int     `json:"day_of_week"`
	Month          int     `json:"month"`
	IsWeekend      int     `json:"is_weekend"`
	IsRushHour     int     `json:"is_rush_hour"`
}

// ToSlice returns the feature vector in its fixed ordering, the sole input
// any Predictor accepts.
func (f FeatureVector) ToSlice() []float64 {
	return []float64{
		f.DistanceKm,
		float64(f.PassengerCount),
		float64(f.VendorID),
		float64(f.HourOfDay),
		float64(f.DayOfWeek),
		float64(f.Month),
		float64(f.IsWeekend),
		float64(f.IsRushHour),
	}
}

// BoundingBox bounds valid pickup/dropoff coordinates (§3).
type BoundingBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

func (b BoundingBox) contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// FeatureBuilder is C1: a pure, stateless derivation of a FeatureVector from
// a PredictionRequest (§4.1). It performs no I/O and holds no mutable state,
// so it is safe to share across goroutines without synchronization.
type FeatureBuilder struct {
	Box BoundingBox
}

// NewFeatureBuilder constructs a FeatureBuilder bound to a coordinate box.
func NewFeatureBuilder(box BoundingBox) *FeatureBuilder {
	return &FeatureBuilder{Box: box}
}

// Build derives a FeatureVector from a request, or returns a *ValidationError
// describing precisely why the request was rejected (§4.1 Failure modes).
func (b *FeatureBuilder) Build(req PredictionRequest) (FeatureVector, error) {
	if !isFinite(req.PickupLatitude) || !isFinite(req.PickupLongitude) ||
		!isFinite(req.DropoffLatitude) || !isFinite(req.DropoffLongitude) {
		return FeatureVector{}, newValidationError(InvalidCoordinate, "coordinates must be finite numbers")
	}

	if req.PickupLatitude < -90 || req.PickupLatitude > 90 || req.DropoffLatitude < -90 || req.DropoffLatitude > 90 {
		return FeatureVector{}, newValidationError(InvalidCoordinate, "latitude must be within [-90, 90]")
	}
	if req.PickupLongitude < -180 || req.PickupLongitude > 180 || req.DropoffLongitude < -180 || req.DropoffLongitude > 180 {
		return FeatureVector{}, newValidationError(InvalidCoordinate, "longitude must be within [-180, 180]")
	}

	if !b.Box.contains(req.PickupLatitude, req.PickupLongitude) {
		return FeatureVector{}, newValidationError(OutsideBoundingBox, "pickup (%.4f, %.4f) is outside the configured bounding box", req.PickupLatitude, req.PickupLongitude)
	}
	if !b.Box.contains(req.DropoffLatitude, req.DropoffLongitude) {
		return FeatureVector{}, newValidationError(OutsideBoundingBox, "dropoff (%.4f, %.4f) is outside the configured bounding box", req.DropoffLatitude, req.DropoffLongitude)
	}

	if req.PassengerCount < 1 || req.PassengerCount > 6 {
		return FeatureVector{}, newValidationError(InvalidPassengerCount, "passenger_count must be between 1 and 6, got %d", req.PassengerCount)
	}

	if req.PickupDatetime.IsZero() {
		return FeatureVector{}, newValidationError(InvalidTimestamp, "pickup_datetime is required")
	}

	distance := Haversine(req.PickupLatitude, req.PickupLongitude, req.DropoffLatitude, req.DropoffLongitude)
	if distance > maxDistanceKm {
		return FeatureVector{}, newValidationError(DistanceExceedsLimit, "distance %.2f km exceeds the %.0f km limit", distance, maxDistanceKm)
	}
	if distance < 0 {
		distance = 0
	}

	hour := req.PickupDatetime.Hour()
	// Monday=0 per §3; time.Weekday has Sunday=0, so shift by one and wrap.
	dayOfWeek := (int(req.PickupDatetime.Weekday()) + 6) % 7
	month := int(req.PickupDatetime.Month())

	isWeekend := 0
	if dayOfWeek >= 5 {
		isWeekend = 1
	}
	isRushHour := 0
	if rushHours[hour] {
		isRushHour = 1
	}

	return FeatureVector{
		DistanceKm:     distance,
		PassengerCount: req.PassengerCount,
		VendorID:       req.VendorID,
		HourOfDay:      hour,
		DayOfWeek:      dayOfWeek,
		Month:          month,
		IsWeekend:      isWeekend,
		IsRushHour:     isRushHour,
	}, nil
}

// Haversine calculates the great-circle distance in kilometers between two
// coordinates (§4.1). Earth radius R = 6371.0 km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180.0
	phi2 := lat2 * math.Pi / 180.0
	dPhi := (lat2 - lat1) * math.Pi / 180.0
	dLambda := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
