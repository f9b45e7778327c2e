// Package drivetrain contains the domain types shared across the
// activity-sync pipeline: the activity record read from the remote
// catalog, its content hash, and the archive key derived from the two.
package drivetrain

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// ActivityRecord is one row decoded from the remote catalog's activity
// listing (spec.md section 3).
type ActivityRecord struct {
	Id            string
	Name          string
	StartLocal    string // ISO-8601 local datetime, no zone, kept as the raw string
	ActivityType  string
	DistanceM     float64
	ElapsedTimeS  int64
}

// ContentHash is a deterministic digest over the tuple
// (id, name, start_local, elapsed_time_s, distance_m). Two records with
// equal hashes are considered equivalent for archive purposes.
func ContentHash(a ActivityRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", a.Id, a.Name, a.StartLocal)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(a.ElapsedTimeS))
	h.Write(buf[:])

	binary.BigEndian.PutUint64(buf[:], math.Float64bits(a.DistanceM))
	h.Write(buf[:])

	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// ArchiveKey returns the "{id}:{hash}" string that is an activity's primary
// identity within the index and archive.
func ArchiveKey(id, hash string) string {
	return id + ":" + hash
}

// RecordKey computes ContentHash and returns the resulting ArchiveKey in
// one call, the form most callers in syncengine need.
func RecordKey(a ActivityRecord) string {
	return ArchiveKey(a.Id, ContentHash(a))
}

// Credential is the opaque secret-store token used as the remote catalog's
// HTTP Basic password, with the literal user "API_KEY" (spec.md section 6).
// Its String method is redacted; adapters must never log the raw value.
type Credential string

// BasicAuthHeader renders the literal "Authorization: Basic ..." header
// value spec.md section 6 requires.
func (c Credential) BasicAuthHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("API_KEY:"+string(c)))
}

// String redacts the credential so it is safe to pass to %v/%s formatting
// and structured loggers by accident.
func (c Credential) String() string {
	return "Credential(redacted)"
}
