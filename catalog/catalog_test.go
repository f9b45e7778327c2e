package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ridelines/drivetrain"
)

func TestDecodeCSVRequiredColumns(t *testing.T) {
	csv := "id,name,start_date_local,type,distance,elapsed_time,extra_col\n" +
		"1,Morning Ride,2026-01-02T07:00:00,Ride,30500.5,3600,ignored\n"

	records, err := decodeCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Id != "1" || records[0].Name != "Morning Ride" {
		t.Fatalf("unexpected record: %#v", records[0])
	}
}

func TestDecodeCSVMissingColumn(t *testing.T) {
	csv := "id,name\n1,x\n"
	_, err := decodeCSV(strings.NewReader(csv))
	if err == nil {
		t.Fatalf("expected error for missing required column")
	}
	var parseErr *drivetrain.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *drivetrain.ParseError, got %T", err)
	}
}

func TestDecodeCSVMalformedRow(t *testing.T) {
	csv := "id,name,start_date_local,type,distance,elapsed_time\n" +
		"1,x,2026-01-02T07:00:00,Ride,not-a-number,3600\n"
	_, err := decodeCSV(strings.NewReader(csv))
	if err == nil {
		t.Fatalf("expected error for malformed distance field")
	}
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Download(context.Background(), "missing", drivetrain.Credential("secret"))
	if err != drivetrain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDownloadSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Basic ") {
			t.Errorf("expected Basic auth header, got %q", auth)
		}
		w.Write([]byte("fit-bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	data, err := c.Download(context.Background(), "123", drivetrain.Credential("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "fit-bytes" {
		t.Fatalf("unexpected body: %q", data)
	}
}

func TestDownloadRetriesTransientThenFails(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Download(context.Background(), "123", drivetrain.Credential("secret"))
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	// initial attempt + 2 retries = 3
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
