// Package inventory computes which media files a session produced by
// comparing per-camera filename snapshots taken before and after recording.
package inventory

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	cferrors "github.com/bavix/camfleet/internal/errors"
)

// Snapshot maps camera identifiers to the filenames reported at one point
// in time, in the camera's own ordering.
type Snapshot map[string][]string

// Diff returns, per camera, the filenames present in post but absent from
// pre, preserving post's ordering. Files deleted on-camera between the
// snapshots are ignored: the result is new material only, never a symmetric
// difference.
//
// A camera present in post but missing from pre cannot happen when the
// session state machine captured the baseline before recording; when it does
// happen it is reported as an inconsistency alongside the results for the
// consistent cameras, never silently skipped.
func Diff(pre, post Snapshot) (map[string][]string, error) {
	out := make(map[string][]string, len(post))

	var errs []error

	for _, id := range slices.Sorted(maps.Keys(post)) {
		base, ok := pre[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", cferrors.ErrInventoryInconsistency, id))

			continue
		}

		known := make(map[string]struct{}, len(base))
		for _, f := range base {
			known[f] = struct{}{}
		}

		fresh := make([]string, 0)

		for _, f := range post[id] {
			if _, exists := known[f]; !exists {
				fresh = append(fresh, f)
			}
		}

		out[id] = fresh
	}

	return out, errors.Join(errs...)
}
