package drivetrain

import "testing"

func TestContentHashStability(t *testing.T) {
	a := ActivityRecord{Id: "123", Name: "Morning Ride", StartLocal: "2026-01-02T07:00:00", ElapsedTimeS: 3600, DistanceM: 30500.5}

	h1 := ContentHash(a)
	h2 := ContentHash(a)
	if h1 != h2 {
		t.Fatalf("hash not stable: %s != %s", h1, h2)
	}
}

func TestContentHashChangesOnRename(t *testing.T) {
	a := ActivityRecord{Id: "123", Name: "Morning Ride", StartLocal: "2026-01-02T07:00:00", ElapsedTimeS: 3600, DistanceM: 30500.5}
	b := a
	b.Name = "Morning Ride (renamed)"

	if ContentHash(a) == ContentHash(b) {
		t.Fatalf("expected hash to change when name changes")
	}
}

func TestContentHashIgnoresFieldOrderNotFields(t *testing.T) {
	a := ActivityRecord{Id: "1", Name: "x", StartLocal: "t", ElapsedTimeS: 1, DistanceM: 1}
	b := ActivityRecord{Id: "1", Name: "x", StartLocal: "t", ElapsedTimeS: 1, DistanceM: 1}
	if ContentHash(a) != ContentHash(b) {
		t.Fatalf("expected equal records to hash equally")
	}
}

func TestArchiveKey(t *testing.T) {
	got := ArchiveKey("123", "abcd")
	want := "123:abcd"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
