// Package index implements ActivityIndex (spec.md section 4.2): the
// persisted, hash-keyed catalog distinguishing activities that produced
// geometry from those that did not.
package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/ridelines/drivetrain"
)

const (
	magic         = "AIDX"
	currentVersion uint16 = 1
)

// Index is the in-memory form of ActivityIndex. The two sets are kept as
// maps for O(1) membership and diff bookkeeping; Encode sorts their keys
// before serializing so the wire format is deterministic (spec.md section
// 5: "ordered serialization of the two sets by key").
type Index struct {
	AthleteId      string
	LastUpdated    time.Time
	WithGeometry   map[string]struct{}
	WithoutGeometry map[string]struct{}
}

// Empty constructs a fresh Index for an athlete with both sets empty.
func Empty(athleteId string) *Index {
	return &Index{
		AthleteId:       athleteId,
		LastUpdated:     time.Time{},
		WithGeometry:    make(map[string]struct{}),
		WithoutGeometry: make(map[string]struct{}),
	}
}

// Contains reports whether key is present in either set.
func (idx *Index) Contains(key string) bool {
	if _, ok := idx.WithGeometry[key]; ok {
		return true
	}
	_, ok := idx.WithoutGeometry[key]
	return ok
}

// CarryForward copies key's bucket from "from" into idx, if present, and
// reports whether it found one. Used during Phase II diff to move unchanged
// entries across runs without a refetch.
func (idx *Index) CarryForward(key string, from *Index) bool {
	if _, ok := from.WithGeometry[key]; ok {
		idx.WithGeometry[key] = struct{}{}
		return true
	}
	if _, ok := from.WithoutGeometry[key]; ok {
		idx.WithoutGeometry[key] = struct{}{}
		return true
	}
	return false
}

// InsertWithGeometry records key as having produced at least one feature.
// The caller guarantees key is not already present in either set.
func (idx *Index) InsertWithGeometry(key string) {
	idx.WithGeometry[key] = struct{}{}
}

// InsertWithoutGeometry records key as having produced no GPS samples.
// The caller guarantees key is not already present in either set.
func (idx *Index) InsertWithoutGeometry(key string) {
	idx.WithoutGeometry[key] = struct{}{}
}

// Total returns the cardinality of the union of the two sets.
func (idx *Index) Total() int {
	return len(idx.WithGeometry) + len(idx.WithoutGeometry)
}

// sortedKeys returns m's keys in ascending lexicographic order.
func sortedKeys(m map[string]struct{}) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// Encode serializes idx to the version-1 binary format described in
// spec.md section 6: magic, version, length-prefixed athlete_id and
// last_updated, then each set as a count followed by length-prefixed keys
// in ascending sort order.
func (idx *Index) Encode() []byte {
	var buf bytes.Buffer

	buf.WriteString(magic)
	writeUint16(&buf, currentVersion)
	writeString16(&buf, idx.AthleteId)
	writeString16(&buf, idx.LastUpdated.UTC().Format(time.RFC3339))

	withKeys := sortedKeys(idx.WithGeometry)
	writeUint32(&buf, uint32(len(withKeys)))
	for _, k := range withKeys {
		writeString16(&buf, k)
	}

	withoutKeys := sortedKeys(idx.WithoutGeometry)
	writeUint32(&buf, uint32(len(withoutKeys)))
	for _, k := range withoutKeys {
		writeString16(&buf, k)
	}

	return buf.Bytes()
}

// Decode parses the version-1 binary format, enforcing the invariants
// spec.md section 4.2 lists: disjointness of the two sets, a non-empty
// athlete_id, and an understood version. Trailing bytes after the two sets
// are tolerated and ignored, per the forward-compatibility contract.
func Decode(data []byte) (*Index, error) {
	r := bytes.NewReader(data)

	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil || string(hdr) != magic {
		return nil, fmt.Errorf("%w: bad magic", drivetrain.ErrCorruptIndex)
	}

	version, err := readUint16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drivetrain.ErrCorruptIndex, err)
	}
	if version != currentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", drivetrain.ErrCorruptIndex, version)
	}

	athleteId, err := readString16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drivetrain.ErrCorruptIndex, err)
	}
	if athleteId == "" {
		return nil, fmt.Errorf("%w: empty athlete_id", drivetrain.ErrCorruptIndex)
	}

	lastUpdatedStr, err := readString16(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drivetrain.ErrCorruptIndex, err)
	}
	lastUpdated, err := time.Parse(time.RFC3339, lastUpdatedStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad last_updated: %v", drivetrain.ErrCorruptIndex, err)
	}

	withGeometry, err := readKeySet(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drivetrain.ErrCorruptIndex, err)
	}

	withoutGeometry, err := readKeySet(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drivetrain.ErrCorruptIndex, err)
	}

	for k := range withGeometry {
		if _, ok := withoutGeometry[k]; ok {
			return nil, fmt.Errorf("%w: key %q in both sets", drivetrain.ErrCorruptIndex, k)
		}
	}

	return &Index{
		AthleteId:       athleteId,
		LastUpdated:     lastUpdated,
		WithGeometry:    withGeometry,
		WithoutGeometry: withoutGeometry,
	}, nil
}

func readKeySet(r *bytes.Reader) (map[string]struct{}, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		k, err := readString16(r)
		if err != nil {
			return nil, err
		}
		set[k] = struct{}{}
	}
	return set, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString16(buf *bytes.Buffer, s string) {
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString16(r *bytes.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
