package geo

import (
	"math"

	"popout/internal/models"
)

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points, by the
// haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Result pairs a candidate event with its computed distance from the origin.
type Result struct {
	Event      models.Event
	DistanceKm float64
}

// Nearby filters candidates to those within maxKm of the origin, boundary
// inclusive. Candidates without coordinates are skipped. Order follows the
// candidate slice; callers sort if they care.
func Nearby(originLat, originLon, maxKm float64, candidates []models.Event) []Result {
	out := make([]Result, 0, len(candidates))
	for _, e := range candidates {
		if !e.HasLocation() {
			continue
		}
		d := DistanceKm(originLat, originLon, *e.Lat, *e.Lon)
		if d <= maxKm {
			out = append(out, Result{Event: e, DistanceKm: d})
		}
	}
	return out
}
