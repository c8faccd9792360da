package camera

import (
	"context"
	"time"
)

// Handle is the vendor control channel for one camera. Every call is a
// blocking network operation; the Controller is responsible for serializing
// calls on one handle and for bounding how long a command may take. The
// transport behind a Handle (HTTP or otherwise) is not this package's
// concern.
type Handle interface {
	// Open establishes the control channel.
	Open(ctx context.Context) error

	// LoadVideoPreset selects the video preset group. Recording silently
	// produces nothing when the camera sits in another group.
	LoadVideoPreset(ctx context.Context) error

	// SetShutter engages or disengages recording. Idempotent on the camera
	// side: enabling an already-enabled shutter is not an error.
	SetShutter(ctx context.Context, enabled bool) error

	// SetTurbo toggles turbo transfer mode. Turbo prohibits recording and
	// speeds up downloads.
	SetTurbo(ctx context.Context, enabled bool) error

	// SetClock synchronizes the camera clock. Cameras may not retain time
	// across power cycles.
	SetClock(ctx context.Context, now time.Time) error

	// ListMedia reports every media filename currently on the camera, in
	// the camera's own ordering.
	ListMedia(ctx context.Context) ([]string, error)

	// DownloadMedia fetches one media file to destPath.
	DownloadMedia(ctx context.Context, filename, destPath string) error

	// DownloadMetadata fetches the telemetry track for one media file.
	DownloadMetadata(ctx context.Context, filename, destPath string) error

	// Close releases the control channel.
	Close(ctx context.Context) error
}
