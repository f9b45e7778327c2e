package geo

import "math"

// earthRadiusM is the Earth radius used for the great-circle distance
// calculation, per spec.md section 4.1.
const earthRadiusM = 6371000.0

// gapThresholdM is the maximum consecutive-sample distance a run may span
// before the track is split. Exactly 100.0m is inclusive: still one run.
const gapThresholdM = 100.0

// haversineMeters returns the great-circle distance between two WGS-84
// points in meters.
func haversineMeters(aLat, aLon, bLat, bLon float64) float64 {
	const deg2rad = math.Pi / 180.0

	lat1 := aLat * deg2rad
	lat2 := bLat * deg2rad
	dLat := (bLat - aLat) * deg2rad
	dLon := (bLon - aLon) * deg2rad

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// splitRuns partitions samples into maximal contiguous runs whose
// consecutive great-circle distance never exceeds gapThresholdM. Runs of
// length 1 are dropped by the caller, not here, since callers differ on
// whether they need to know a singleton existed (they don't, per spec).
func splitRuns(samples []Sample) [][]Sample {
	if len(samples) == 0 {
		return nil
	}

	var runs [][]Sample
	current := []Sample{samples[0]}

	for i := 1; i < len(samples); i++ {
		d := haversineMeters(samples[i-1].LatDeg, samples[i-1].LonDeg, samples[i].LatDeg, samples[i].LonDeg)
		if d > gapThresholdM {
			runs = append(runs, current)
			current = []Sample{samples[i]}
			continue
		}
		current = append(current, samples[i])
	}
	runs = append(runs, current)

	return runs
}
