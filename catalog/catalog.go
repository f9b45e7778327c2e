// Package catalog implements RemoteCatalog (spec.md section 4.3): the
// adapter over the upstream activity listing (CSV) and per-activity binary
// download, with exponential-backoff retry on transient failures.
package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ridelines/drivetrain"
)

// requiredColumns are the CSV headers spec.md section 4.3 names as
// required; extra columns are tolerated.
var requiredColumns = []string{"id", "name", "start_date_local", "type", "distance", "elapsed_time"}

// RemoteCatalog is an HTTP client over the upstream activity catalog
// described in spec.md section 6.
type RemoteCatalog struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New constructs a RemoteCatalog with a per-request timeout client, per the
// 30s deadline spec.md section 5 requires for every network call.
func New(baseURL string) *RemoteCatalog {
	return &RemoteCatalog{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// List decodes the athlete's activity listing CSV. The catalog is bounded
// (typically at most a few thousand rows) so the whole response is read
// into memory, matching Phase II's "consume into memory" step.
func (c *RemoteCatalog) List(ctx context.Context, athleteId string, cred drivetrain.Credential) ([]drivetrain.ActivityRecord, error) {
	url := fmt.Sprintf("%s/api/v1/athlete/%s/activities.csv", c.BaseURL, athleteId)

	body, err := c.doWithRetry(ctx, url, cred)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return decodeCSV(body)
}

// Download fetches the raw FIT byte stream for one activity.
func (c *RemoteCatalog) Download(ctx context.Context, activityId string, cred drivetrain.Credential) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v1/activity/%s/fit-file", c.BaseURL, activityId)

	body, err := c.doWithRetry(ctx, url, cred)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return io.ReadAll(body)
}

// doWithRetry issues one GET request under the retry policy in retry.go,
// classifying the response status into the error kinds spec.md section 4.3
// and section 7 specify.
func (c *RemoteCatalog) doWithRetry(ctx context.Context, url string, cred drivetrain.Credential) (io.ReadCloser, error) {
	var body io.ReadCloser

	err := WithBackoff(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", cred.BasicAuthHeader())

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return retryableErr(&drivetrain.Transient{Cause: err})
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return drivetrain.ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return drivetrain.ErrAuth
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			return retryableErr(&drivetrain.Transient{Cause: fmt.Errorf("status %d", resp.StatusCode)})
		case resp.StatusCode >= 400:
			resp.Body.Close()
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body = resp.Body
		return nil
	})

	return body, err
}

// decodeCSV parses the activity listing, tolerating extra columns and
// raising a *drivetrain.ParseError identifying the offending row on any
// malformed record.
func decodeCSV(r io.Reader) ([]drivetrain.ActivityRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, &drivetrain.ParseError{Row: 0, Wrapped: err}
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := colIndex[required]; !ok {
			return nil, &drivetrain.ParseError{Row: 0, Wrapped: fmt.Errorf("missing required column %q", required)}
		}
	}

	var records []drivetrain.ActivityRecord
	row := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &drivetrain.ParseError{Row: row, Wrapped: err}
		}

		rec, err := parseRow(fields, colIndex)
		if err != nil {
			return nil, &drivetrain.ParseError{Row: row, Wrapped: err}
		}
		records = append(records, rec)
		row++
	}

	return records, nil
}

func parseRow(fields []string, colIndex map[string]int) (drivetrain.ActivityRecord, error) {
	get := func(col string) string {
		i, ok := colIndex[col]
		if !ok || i >= len(fields) {
			return ""
		}
		return fields[i]
	}

	var distance float64
	if v := strings.TrimSpace(get("distance")); v != "" {
		var err error
		distance, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return drivetrain.ActivityRecord{}, fmt.Errorf("bad distance %q: %w", v, err)
		}
	}

	var elapsed int64
	if v := strings.TrimSpace(get("elapsed_time")); v != "" {
		var err error
		elapsed, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return drivetrain.ActivityRecord{}, fmt.Errorf("bad elapsed_time %q: %w", v, err)
		}
	}

	id := strings.TrimSpace(get("id"))
	if id == "" {
		return drivetrain.ActivityRecord{}, fmt.Errorf("missing id")
	}

	return drivetrain.ActivityRecord{
		Id:           id,
		Name:         get("name"),
		StartLocal:   get("start_date_local"),
		ActivityType: get("type"),
		DistanceM:    distance,
		ElapsedTimeS: elapsed,
	}, nil
}
