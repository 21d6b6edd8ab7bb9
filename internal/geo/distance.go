package geo

import (
	"math"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

const (
	// EARTH_RADIUS_METERS is the mean Earth radius used for great-circle distances
	EARTH_RADIUS_METERS = 6371000.0
	// METERS_PER_DEGREE_LAT is the length of one degree of latitude on the mean sphere
	METERS_PER_DEGREE_LAT = EARTH_RADIUS_METERS * math.Pi / 180
)

// Distance returns the haversine great-circle distance between a and b in meters
func Distance(a, b domain.Location) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLon := toRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	if h > 1 {
		h = 1
	}

	return 2 * EARTH_RADIUS_METERS * math.Asin(math.Sqrt(h))
}

// Offset returns the point reached by moving northMeters north and eastMeters east of origin.
// It is an equirectangular approximation, accurate for the short distances used by geofences.
func Offset(origin domain.Location, northMeters, eastMeters float64) domain.Location {
	lat := origin.Lat + northMeters/METERS_PER_DEGREE_LAT
	lon := origin.Lon
	if cos := math.Cos(toRadians(origin.Lat)); cos > 1e-12 {
		lon += eastMeters / (METERS_PER_DEGREE_LAT * cos)
	}
	return domain.Location{Lat: clampLat(lat), Lon: wrapLon(lon)}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// wrapLon normalizes a longitude into [-180, 180)
func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
