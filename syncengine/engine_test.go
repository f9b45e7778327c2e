package syncengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ridelines/drivetrain"
	"github.com/ridelines/drivetrain/catalog"
	"github.com/ridelines/drivetrain/index"
)

func csvServer(t *testing.T, csv string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csv))
	}))
}

const header = "id,name,start_date_local,type,distance,elapsed_time\n"

func TestDiffCarriesForwardUnchangedActivity(t *testing.T) {
	srv := csvServer(t, header+"A,Morning Ride,2026-01-01T08:00:00,Ride,10000,3600\n")
	defer srv.Close()

	rec := drivetrain.ActivityRecord{Id: "A", Name: "Morning Ride", StartLocal: "2026-01-01T08:00:00", ActivityType: "Ride", DistanceM: 10000, ElapsedTimeS: 3600}
	key := drivetrain.RecordKey(rec)

	prior := index.Empty("athlete-1")
	prior.InsertWithGeometry(key)

	e := &Engine{Catalog: catalog.New(srv.URL)}

	_, next, toFetch, carriedWithGeom, recordByKey, unchanged, err := e.diff(context.Background(), "athlete-1", drivetrain.Credential("secret"), prior)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if unchanged != 1 {
		t.Fatalf("expected 1 unchanged activity, got %d", unchanged)
	}
	if len(toFetch) != 0 {
		t.Fatalf("expected nothing queued for fetch, got %v", toFetch)
	}
	if !next.Contains(key) {
		t.Fatalf("expected carried-forward key present in next index")
	}
	if _, ok := carriedWithGeom[key]; !ok {
		t.Fatalf("expected key marked as carried-forward with_geometry")
	}
	if _, ok := recordByKey[key]; !ok {
		t.Fatalf("expected recordByKey to contain %q", key)
	}
}

func TestDiffQueuesRenamedActivityForFetch(t *testing.T) {
	srv := csvServer(t, header+"A,Renamed Ride,2026-01-01T08:00:00,Ride,10000,3600\n")
	defer srv.Close()

	oldRec := drivetrain.ActivityRecord{Id: "A", Name: "Morning Ride", StartLocal: "2026-01-01T08:00:00", ActivityType: "Ride", DistanceM: 10000, ElapsedTimeS: 3600}
	oldKey := drivetrain.RecordKey(oldRec)

	prior := index.Empty("athlete-1")
	prior.InsertWithGeometry(oldKey)

	e := &Engine{Catalog: catalog.New(srv.URL)}

	_, next, toFetch, _, _, unchanged, err := e.diff(context.Background(), "athlete-1", drivetrain.Credential("secret"), prior)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if unchanged != 0 {
		t.Fatalf("expected 0 unchanged, got %d", unchanged)
	}
	if len(toFetch) != 1 || toFetch[0].Name != "Renamed Ride" {
		t.Fatalf("expected the renamed activity queued for fetch, got %v", toFetch)
	}
	if next.Contains(oldKey) {
		t.Fatalf("old key should not survive a content-hash change")
	}
}

func TestDiffHandlesColdStartWithNoPriorIndex(t *testing.T) {
	srv := csvServer(t, header+
		"A,Ride A,2026-01-01T08:00:00,Ride,1000,600\n"+
		"B,Ride B,2026-01-02T08:00:00,Ride,0,0\n")
	defer srv.Close()

	prior := index.Empty("athlete-1")
	e := &Engine{Catalog: catalog.New(srv.URL)}

	_, _, toFetch, _, _, unchanged, err := e.diff(context.Background(), "athlete-1", drivetrain.Credential("secret"), prior)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if unchanged != 0 {
		t.Fatalf("expected 0 unchanged on cold start, got %d", unchanged)
	}
	if len(toFetch) != 2 {
		t.Fatalf("expected both activities queued for fetch, got %d", len(toFetch))
	}
}
