package syncengine

import (
	"fmt"
	"os"
	"path/filepath"
)

// scratch is the per-run working directory: feature blobs land here as
// Phase III workers finish, and the composed archive/tile bundle are staged
// here before upload. It is torn down on every exit path (success, failure,
// cancellation), mirroring the teacher's defer-heavy release idiom for
// TileDB config/context/VFS handles in file.go and json.go.
type scratch struct {
	dir string
}

// newScratch creates a fresh scratch directory under root for one run.
func newScratch(root, athleteId string) (*scratch, error) {
	dir, err := os.MkdirTemp(root, "drivetrain-"+athleteId+"-")
	if err != nil {
		return nil, fmt.Errorf("syncengine: create scratch dir: %w", err)
	}
	return &scratch{dir: dir}, nil
}

// blobPath returns the path a Phase III worker writes a feature blob to.
func (s *scratch) blobPath(activityId, hash string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.blob", activityId, hash))
}

func (s *scratch) archivePath() string { return filepath.Join(s.dir, "activities.archive.zst") }
func (s *scratch) tilePath() string    { return filepath.Join(s.dir, "activities.tiles") }

// Close removes the entire scratch directory. Safe to call unconditionally;
// errors are logged by the caller rather than surfaced, since a cleanup
// failure must never mask the run's actual result.
func (s *scratch) Close() error {
	return os.RemoveAll(s.dir)
}
