package syncengine

import "fmt"

// Persisted layout per spec.md section 6.
func indexKey(athleteId string) string {
	return fmt.Sprintf("athletes/%s/activities.index", athleteId)
}

func archiveKey(athleteId string) string {
	return fmt.Sprintf("athletes/%s/activities.archive.zst", athleteId)
}

// blobKey is the supplemented per-activity persistence path (see DESIGN.md):
// each with_geometry feature blob is also stored individually so a future
// run's carry-forward can retrieve it unambiguously by key, without needing
// to replay the prior run's archive-composition order.
func blobKey(athleteId, archiveKeyStr string) string {
	return fmt.Sprintf("athletes/%s/blobs/%s.blob", athleteId, archiveKeyStr)
}

func tileKey(tilePrefix string) string {
	return tilePrefix + "/activities.tiles"
}
