package geo

import (
	"bytes"
	"errors"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tormoder/fit"

	"github.com/ridelines/drivetrain"
)

// FeatureBlob is the geospatial representation produced by one activity's
// conversion: a GeoJSON feature collection whose geometries are line
// strings, one per gap-split run of at least two samples.
type FeatureBlob struct {
	*geojson.FeatureCollection
}

// Empty reports whether the blob carries no geometry, i.e. the activity
// contributes to without_geometry rather than with_geometry.
func (b *FeatureBlob) Empty() bool {
	return b == nil || b.FeatureCollection == nil || len(b.Features) == 0
}

// Convert decodes a FIT byte stream into a FeatureBlob. GPS-absence is
// reported as an empty, non-error FeatureBlob; only structural decode
// failures return a *drivetrain.DecodeError.
func Convert(data []byte) (*FeatureBlob, error) {
	f, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &drivetrain.DecodeError{Cause: classify(err), Wrapped: err}
	}

	act, err := f.Activity()
	if err != nil {
		return nil, &drivetrain.DecodeError{Cause: drivetrain.UnsupportedRecord, Wrapped: err}
	}

	samples := extractSamples(act)

	fc := geojson.NewFeatureCollection()
	for _, run := range splitRuns(samples) {
		if len(run) < 2 {
			continue
		}
		ls := make(orb.LineString, len(run))
		for i, s := range run {
			ls[i] = orb.Point{s.LonDeg, s.LatDeg}
		}
		fc.Append(geojson.NewFeature(ls))
	}

	return &FeatureBlob{fc}, nil
}

// extractSamples walks the activity's record messages and keeps only those
// carrying a valid position; records with an invalid/absent lat-lon pair
// are dropped rather than treated as a gap.
func extractSamples(act *fit.ActivityFile) []Sample {
	samples := make([]Sample, 0, len(act.Records))

	for _, rec := range act.Records {
		if rec == nil || rec.PositionLat.Invalid() || rec.PositionLong.Invalid() {
			continue
		}

		samples = append(samples, Sample{
			Timestamp: rec.Timestamp,
			LatDeg:    semicirclesToDegrees(int32(rec.PositionLat)),
			LonDeg:    semicirclesToDegrees(int32(rec.PositionLong)),
		})
	}

	return samples
}

// classify maps a tormoder/fit decode failure onto the three causes
// spec.md section 4.1 names. Truncated input surfaces as an unexpected
// EOF from the underlying reader; anything else is treated as malformed.
func classify(err error) drivetrain.DecodeCause {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return drivetrain.Truncated
	}
	return drivetrain.Malformed
}
