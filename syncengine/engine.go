// Package syncengine implements SyncEngine (spec.md section 4.5): the
// four-phase load/diff/fetch+convert/finalize orchestration that is the
// core of drivetrain. Bounded worker fan-out follows the teacher's own
// convert_gsf_list pool in cmd/main.go (github.com/alitto/pond). Shared
// Phase III state is guarded by two mutexes: one for the in-flight next
// index and one for the outcome counters.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/alitto/pond"

	"github.com/ridelines/drivetrain"
	"github.com/ridelines/drivetrain/archivefmt"
	"github.com/ridelines/drivetrain/blobstore"
	"github.com/ridelines/drivetrain/catalog"
	"github.com/ridelines/drivetrain/geo"
	"github.com/ridelines/drivetrain/index"
	"github.com/ridelines/drivetrain/telemetry"
	"github.com/ridelines/drivetrain/tiler"
)

// defaultConcurrencyCap is the fetch fan-out limit spec.md section 4.5
// fixes at 5; implementers may parameterize but must default to this.
const defaultConcurrencyCap = 5

// runTimeout bounds an entire run, per spec.md section 5.
const runTimeout = 15 * time.Minute

// Engine wires every collaborator a run needs. Catalog, Store, and Tiler
// are required; ConcurrencyCap and ScratchRoot fall back to sane defaults
// when left zero.
type Engine struct {
	Catalog        *catalog.RemoteCatalog
	Store          *blobstore.BlobStore
	CDN            *blobstore.CDN // optional; nil disables invalidation (e.g. local/dev runs)
	Tiler          *tiler.Driver
	Telemetry      *telemetry.Telemetry
	ConcurrencyCap int
	ScratchRoot    string
	TilePrefix     string
}

// Run executes the four phases against one athlete's data, returning a
// Summary on success or a structured error on abort. The prior persisted
// index and archive remain the observable state until Phase IV uploads the
// new archive and then the new index; a later failure (tiler, tile upload)
// returns an error with the new archive and index already published.
func (e *Engine) Run(ctx context.Context, athleteId string, cred drivetrain.Credential) (*Summary, error) {
	if athleteId == "" {
		return nil, drivetrain.ErrBadTrigger
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	st := stateInit
	log.Printf("syncengine: run start athlete=%s state=%s", athleteId, st)

	concurrencyCap := e.ConcurrencyCap
	if concurrencyCap <= 0 {
		concurrencyCap = defaultConcurrencyCap
	}

	scratchRoot := e.ScratchRoot
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}

	// Phase I — Load.
	prior, err := e.loadIndex(athleteId)
	if err != nil {
		st = stateAborted
		log.Printf("syncengine: run aborted athlete=%s state=%s phase=load err=%v", athleteId, st, err)
		return nil, err
	}
	st = stateLoaded

	// Phase II — Diff.
	records, next, toFetch, carriedWithGeom, recordByKey, unchanged, err := e.diff(ctx, athleteId, cred, prior)
	if err != nil {
		st = stateAborted
		log.Printf("syncengine: run aborted athlete=%s state=%s phase=diff err=%v", athleteId, st, err)
		return nil, err
	}
	st = stateDiffed
	_ = records

	// Phase III — Fetch + Convert.
	sc, err := newScratch(scratchRoot, athleteId)
	if err != nil {
		st = stateAborted
		return nil, err
	}
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			log.Printf("syncengine: scratch cleanup failed athlete=%s: %v", athleteId, cerr)
		}
	}()

	counters, err := e.fetchAndConvert(ctx, athleteId, cred, toFetch, next, sc, concurrencyCap)
	if err != nil {
		st = stateAborted
		log.Printf("syncengine: run aborted athlete=%s state=%s phase=fetch err=%v", athleteId, st, err)
		return nil, err
	}
	st = stateFetched

	// Phase IV — Finalize.
	summary, err := e.finalize(ctx, athleteId, next, sc, recordByKey, carriedWithGeom, counters, unchanged)
	if err != nil {
		st = stateAborted
		log.Printf("syncengine: run aborted athlete=%s state=%s phase=finalize err=%v", athleteId, st, err)
		return nil, err
	}
	st = stateFinalized

	st = stateDone
	log.Printf("syncengine: run done athlete=%s state=%s summary=%+v", athleteId, st, *summary)
	return summary, nil
}

// loadIndex implements Phase I.
func (e *Engine) loadIndex(athleteId string) (*index.Index, error) {
	data, err := e.Store.Get(indexKey(athleteId))
	if errors.Is(err, drivetrain.ErrNotFound) {
		return index.Empty(athleteId), nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncengine: load index: %w", err)
	}

	prior, err := index.Decode(data)
	if err != nil {
		return nil, err // already wraps drivetrain.ErrCorruptIndex
	}
	return prior, nil
}

// diff implements Phase II. It returns the full current record set, the
// in-progress "next" index, the work items still requiring fetch, the set
// of keys carried forward into with_geometry (needed in Phase IV to locate
// their blob in per-key blob storage rather than in this run's scratch
// directory), and a key → record lookup used for archive ordering.
func (e *Engine) diff(ctx context.Context, athleteId string, cred drivetrain.Credential, prior *index.Index) (
	records []drivetrain.ActivityRecord,
	next *index.Index,
	toFetch []drivetrain.ActivityRecord,
	carriedWithGeom map[string]struct{},
	recordByKey map[string]drivetrain.ActivityRecord,
	unchanged int,
	err error,
) {
	records, err = e.Catalog.List(ctx, athleteId, cred)
	if err != nil {
		return nil, nil, nil, nil, nil, 0, err
	}

	next = index.Empty(athleteId)
	carriedWithGeom = make(map[string]struct{})
	recordByKey = make(map[string]drivetrain.ActivityRecord, len(records))

	for _, rec := range records {
		key := drivetrain.RecordKey(rec)
		recordByKey[key] = rec

		if next.CarryForward(key, prior) {
			unchanged++
			if _, ok := next.WithGeometry[key]; ok {
				carriedWithGeom[key] = struct{}{}
			}
			continue
		}
		toFetch = append(toFetch, rec)
	}

	if e.Telemetry != nil {
		e.Telemetry.CatalogTotal.Add(float64(len(records)))
		e.Telemetry.DiffUnchanged.Add(float64(unchanged))
		e.Telemetry.FetchRequested.Add(float64(len(toFetch)))
	}

	return records, next, toFetch, carriedWithGeom, recordByKey, unchanged, nil
}

// fetchCounters accumulates the Phase III outcome tallies under its own mu,
// separate from the mutex that guards next.
type fetchCounters struct {
	mu       sync.Mutex
	fetched  int
	emptyGPS int
	failed   int
}

// fetchAndConvert implements Phase III: a bounded worker pool drains
// toFetch, downloading and converting each activity and updating next under
// a single mutex. A fatal (AuthError) failure cancels the run context,
// stopping in-flight work; per-activity failures only increment a counter.
func (e *Engine) fetchAndConvert(ctx context.Context, athleteId string, cred drivetrain.Credential, toFetch []drivetrain.ActivityRecord, next *index.Index, sc *scratch, concurrencyCap int) (*fetchCounters, error) {
	counters := &fetchCounters{}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatal error
	var fatalOnce sync.Once
	var mu sync.Mutex // guards next; counters uses its own mutex

	pool := pond.New(concurrencyCap, len(toFetch), pond.MinWorkers(concurrencyCap), pond.Context(runCtx))

	for _, rec := range toFetch {
		rec := rec
		pool.Submit(func() {
			if runCtx.Err() != nil {
				return
			}

			key := drivetrain.RecordKey(rec)
			hash := drivetrain.ContentHash(rec)

			data, err := e.Catalog.Download(runCtx, rec.Id, cred)
			if err != nil {
				if errors.Is(err, drivetrain.ErrAuth) {
					fatalOnce.Do(func() {
						fatal = err
						cancel()
					})
					return
				}
				counters.mu.Lock()
				counters.failed++
				counters.mu.Unlock()
				if e.Telemetry != nil {
					e.Telemetry.FetchFailed.Inc()
				}
				return
			}

			blob, err := geo.Convert(data)
			if err != nil {
				counters.mu.Lock()
				counters.failed++
				counters.mu.Unlock()
				if e.Telemetry != nil {
					e.Telemetry.FetchFailed.Inc()
				}
				return
			}

			raw, err := blob.MarshalJSON()
			if err != nil {
				counters.mu.Lock()
				counters.failed++
				counters.mu.Unlock()
				return
			}
			if err := os.WriteFile(sc.blobPath(rec.Id, hash), raw, 0o644); err != nil {
				log.Printf("syncengine: write scratch blob failed athlete=%s activity=%s: %v", athleteId, rec.Id, err)
				counters.mu.Lock()
				counters.failed++
				counters.mu.Unlock()
				return
			}

			mu.Lock()
			if blob.Empty() {
				next.InsertWithoutGeometry(key)
			} else {
				next.InsertWithGeometry(key)
			}
			mu.Unlock()

			counters.mu.Lock()
			if blob.Empty() {
				counters.emptyGPS++
			} else {
				counters.fetched++
			}
			counters.mu.Unlock()

			if e.Telemetry != nil {
				if blob.Empty() {
					e.Telemetry.FetchEmptyGPS.Inc()
				} else {
					e.Telemetry.FetchSucceeded.Inc()
				}
			}
		})
	}

	pool.StopAndWait()

	if fatal != nil {
		return nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", drivetrain.ErrRunTimeout, err)
	}

	return counters, nil
}

// finalize implements Phase IV: archive composition, upload (archive before
// index), tiler invocation, tile upload, and CDN invalidation.
func (e *Engine) finalize(ctx context.Context, athleteId string, next *index.Index, sc *scratch, recordByKey map[string]drivetrain.ActivityRecord, carriedWithGeom map[string]struct{}, counters *fetchCounters, unchanged int) (*Summary, error) {
	keys := make([]string, 0, len(next.WithGeometry))
	for k := range next.WithGeometry {
		keys = append(keys, k)
	}
	orderKeys(keys, recordByKey)

	archiveFile, err := os.Create(sc.archivePath())
	if err != nil {
		return nil, fmt.Errorf("syncengine: create scratch archive: %w", err)
	}

	w, err := archivefmt.NewWriter(archiveFile)
	if err != nil {
		archiveFile.Close()
		return nil, fmt.Errorf("syncengine: new archive writer: %w", err)
	}

	for _, key := range keys {
		blob, isNew, err := e.loadBlobForKey(athleteId, key, carriedWithGeom, recordByKey, sc)
		if err != nil {
			w.Close()
			archiveFile.Close()
			return nil, err
		}
		if err := w.Append(blob); err != nil {
			w.Close()
			archiveFile.Close()
			return nil, fmt.Errorf("syncengine: append blob %s: %w", key, err)
		}
		if isNew {
			if err := e.Store.Put(blobKey(athleteId, key), blob); err != nil {
				log.Printf("syncengine: persist per-key blob failed athlete=%s key=%s: %v", athleteId, key, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		archiveFile.Close()
		return nil, fmt.Errorf("syncengine: close archive writer: %w", err)
	}
	if err := archiveFile.Close(); err != nil {
		return nil, fmt.Errorf("syncengine: close scratch archive: %w", err)
	}

	archiveBytes, err := os.ReadFile(sc.archivePath())
	if err != nil {
		return nil, fmt.Errorf("syncengine: read scratch archive: %w", err)
	}

	next.LastUpdated = time.Now().UTC()

	if err := e.Store.Put(archiveKey(athleteId), archiveBytes); err != nil {
		return nil, fmt.Errorf("syncengine: upload archive: %w", err)
	}
	if err := e.Store.Put(indexKey(athleteId), next.Encode()); err != nil {
		return nil, fmt.Errorf("syncengine: upload index: %w", err)
	}

	if err := e.Tiler.Build(ctx, sc.archivePath(), sc.tilePath()); err != nil {
		return nil, err // the archive+index above are already published, per spec.md section 4.5 step 5
	}

	tileBytes, err := os.ReadFile(sc.tilePath())
	if err != nil {
		return nil, fmt.Errorf("syncengine: read scratch tile bundle: %w", err)
	}
	if err := e.Store.Put(tileKey(e.TilePrefix), tileBytes); err != nil {
		return nil, fmt.Errorf("syncengine: upload tile bundle: %w", err)
	}

	if e.CDN != nil {
		if err := e.CDN.Invalidate(ctx, e.TilePrefix+"/*"); err != nil {
			// Non-fatal per spec.md section 9's open-question resolution: the
			// next successful run reissues the invalidation.
			log.Printf("syncengine: cdn invalidation failed athlete=%s: %v", athleteId, err)
		}
	}

	if e.Telemetry != nil {
		e.Telemetry.ArchiveBytes.Add(float64(len(archiveBytes)))
		if len(archiveBytes) > 0 {
			e.Telemetry.CompressionRatio.Set(float64(w.BytesWritten()) / float64(len(archiveBytes)))
		}
		e.Telemetry.TileBytes.Add(float64(len(tileBytes)))
	}

	return &Summary{
		Unchanged:    unchanged,
		Fetched:      counters.fetched,
		EmptyGPS:     counters.emptyGPS,
		Failed:       counters.failed,
		ArchiveBytes: int64(len(archiveBytes)),
		TileBytes:    int64(len(tileBytes)),
	}, nil
}

// loadBlobForKey returns the raw feature-collection bytes for key, plus
// whether it was produced fresh this run (scratch) as opposed to carried
// forward (existing per-key blob storage, see DESIGN.md).
func (e *Engine) loadBlobForKey(athleteId, key string, carriedWithGeom map[string]struct{}, recordByKey map[string]drivetrain.ActivityRecord, sc *scratch) ([]byte, bool, error) {
	if _, carried := carriedWithGeom[key]; carried {
		data, err := e.Store.Get(blobKey(athleteId, key))
		if err != nil {
			return nil, false, fmt.Errorf("syncengine: load carried-forward blob %s: %w", key, err)
		}
		return data, false, nil
	}

	rec := recordByKey[key]
	hash := drivetrain.ContentHash(rec)
	data, err := os.ReadFile(sc.blobPath(rec.Id, hash))
	if err != nil {
		return nil, false, fmt.Errorf("syncengine: read scratch blob %s: %w", key, err)
	}
	return data, true, nil
}
