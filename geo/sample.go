// Package geo implements GeoConverter (spec.md section 4.1): decoding a
// FIT activity file into a GeoJSON feature collection, splitting the track
// on GPS gaps larger than 100 meters.
package geo

import "time"

// Sample is one decoded GPS fix: a timestamp paired with a WGS-84
// signed-degree position.
type Sample struct {
	Timestamp time.Time
	LatDeg    float64
	LonDeg    float64
}

// semicirclesToDegrees applies the conversion spec.md section 3 specifies:
// deg = semicircles * (180 / 2^31).
func semicirclesToDegrees(semicircles int32) float64 {
	const scale = 180.0 / 2147483648.0 // 180 / 2^31
	return float64(semicircles) * scale
}
