package eta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manhattanBox() BoundingBox {
	return BoundingBox{MinLat: 40.5, MinLon: -74.3, MaxLat: 40.9, MaxLon: -73.7}
}

// TestBuildManhattanTripDuringRushHour mirrors §8 scenario 1: a short
// Manhattan trip at 17:00 should report distance_km≈0.77 and is_rush_hour=1.
func TestBuildManhattanTripDuringRushHour(t *testing.T) {
	builder := NewFeatureBuilder(manhattanBox())
	req := PredictionRequest{
		PickupLatitude:   40.7580,
		PickupLongitude:  -73.9855,
		DropoffLatitude:  40.7614,
		DropoffLongitude: -73.9776,
		PassengerCount:   1,
		VendorID:         1,
		PickupDatetime:   time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC), // Monday
	}

	features, err := builder.Build(req)
	require.NoError(t, err)

	assert.InDelta(t, 0.77, features.DistanceKm, 0.05)
	assert.Equal(t, 17, features.HourOfDay)
	assert.Equal(t, 1, features.IsRushHour)
	assert.Equal(t, 0, features.IsWeekend)
	assert.Equal(t, 0, features.DayOfWeek) // Monday
}

// TestBuildAirportRunOnWeekend mirrors §8 scenario 2: a long airport trip on
// a Saturday should report distance_km≈21.8 and is_weekend=1.
func TestBuildAirportRunOnWeekend(t *testing.T) {
	builder := NewFeatureBuilder(manhattanBox())
	req := PredictionRequest{
		PickupLatitude:   40.7580,
		PickupLongitude:  -73.9855,
		DropoffLatitude:  40.6413,
		DropoffLongitude: -73.7781,
		PassengerCount:   2,
		VendorID:         2,
		PickupDatetime:   time.Date(2026, 3, 7, 11, 0, 0, 0, time.UTC), // Saturday
	}

	features, err := builder.Build(req)
	require.NoError(t, err)

	assert.InDelta(t, 21.8, features.DistanceKm, 1.0)
	assert.Equal(t, 1, features.IsWeekend)
	assert.Equal(t, 0, features.IsRushHour)
}

// TestBuildRejectsOutsideBoundingBox mirrors §8 scenario 3: a pickup outside
// the configured box is rejected with OutsideBoundingBox, not silently
// clamped or accepted.
func TestBuildRejectsOutsideBoundingBox(t *testing.T) {
	builder := NewFeatureBuilder(manhattanBox())
	req := PredictionRequest{
		PickupLatitude:   41.5,
		PickupLongitude:  -73.9855,
		DropoffLatitude:  40.7614,
		DropoffLongitude: -73.9776,
		PassengerCount:   1,
		VendorID:         1,
		PickupDatetime:   time.Now(),
	}

	_, err := builder.Build(req)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, OutsideBoundingBox, verr.Kind)
}

func TestBuildRejectsInvalidPassengerCount(t *testing.T) {
	builder := NewFeatureBuilder(manhattanBox())
	req := PredictionRequest{
		PickupLatitude:   40.7580,
		PickupLongitude:  -73.9855,
		DropoffLatitude:  40.7614,
		DropoffLongitude: -73.9776,
		PassengerCount:   0,
		PickupDatetime:   time.Now(),
	}

	_, err := builder.Build(req)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, InvalidPassengerCount, verr.Kind)
}

func TestBuildRejectsMissingTimestamp(t *testing.T) {
	builder := NewFeatureBuilder(manhattanBox())
	req := PredictionRequest{
		PickupLatitude:   40.7580,
		PickupLongitude:  -73.9855,
		DropoffLatitude:  40.7614,
		DropoffLongitude: -73.9776,
		PassengerCount:   1,
	}

	_, err := builder.Build(req)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, InvalidTimestamp, verr.Kind)
}

func TestBuildRejectsExcessiveDistance(t *testing.T) {
	hugeBox := BoundingBox{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}
	builder := NewFeatureBuilder(hugeBox)
	req := PredictionRequest{
		PickupLatitude:   40.7580,
		PickupLongitude:  -73.9855,
		DropoffLatitude:  51.5072,
		DropoffLongitude: -0.1276,
		PassengerCount:   1,
		PickupDatetime:   time.Now(),
	}

	_, err := builder.Build(req)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, DistanceExceedsLimit, verr.Kind)
}

func TestHaversineKnownDistance(t *testing.T) {
	// JFK to LGA, roughly 17.5km great-circle.
	distance := Haversine(40.6413, -73.7781, 40.7769, -73.8740)
	assert.InDelta(t, 17.5, distance, 2.0)
}

func TestHaversineZeroForIdenticalPoints(t *testing.T) {
	distance := Haversine(40.7580, -73.9855, 40.7580, -73.9855)
	assert.Equal(t, 0.0, distance)
}
