package syncengine

import (
	"sort"

	"github.com/ridelines/drivetrain"
)

// orderKeys sorts keys in place by (start_local asc, id asc), the
// deterministic archive ordering spec.md section 4.5 Phase III and section
// 8 law 6 require.
func orderKeys(keys []string, recordByKey map[string]drivetrain.ActivityRecord) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := recordByKey[keys[i]], recordByKey[keys[j]]
		if a.StartLocal != b.StartLocal {
			return a.StartLocal < b.StartLocal
		}
		return a.Id < b.Id
	})
}
