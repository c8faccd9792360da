package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	cferrors "github.com/bavix/camfleet/internal/errors"
	"github.com/bavix/camfleet/internal/metrics"
)

// State is the connection state of one camera.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateRecording
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const closeTimeout = 5 * time.Second

// Controller owns one camera handle. All commands on one controller are
// strictly serialized against each other; commands to different controllers
// run freely in parallel. Short commands run under the configured
// per-command timeout so an unresponsive camera fails its own command
// instead of stalling the whole fan-out.
type Controller struct {
	id      string
	handle  Handle
	timeout time.Duration

	mu    sync.Mutex // serializes access to the control channel
	state atomic.Int32
	turbo atomic.Bool
}

// Connect opens the control channel and prepares the camera for a session:
// video preset group selected, turbo mode off, clock synced to local wall
// time. A preset failure aborts the connection; turbo and clock failures are
// logged and tolerated.
func Connect(ctx context.Context, identifier string, h Handle, commandTimeout time.Duration) (*Controller, error) {
	logger := zerolog.Ctx(ctx).With().Str("camera", identifier).Logger()

	c := &Controller{
		id:      identifier,
		handle:  h,
		timeout: commandTimeout,
	}
	c.state.Store(int32(StateConnecting))

	if err := c.command(ctx, "open", h.Open); err != nil {
		c.state.Store(int32(StateDisconnected))

		return nil, fmt.Errorf("open %s: %w", identifier, err)
	}

	if err := c.command(ctx, "preset", h.LoadVideoPreset); err != nil {
		c.closeHandle(ctx)

		return nil, fmt.Errorf("%w: %s: %w", cferrors.ErrPresetGroupRejected, identifier, err)
	}

	if err := c.command(ctx, "turbo", func(ctx context.Context) error {
		return h.SetTurbo(ctx, false)
	}); err != nil {
		logger.Warn().Err(err).Msg("could not disable turbo mode")
	}

	if err := c.command(ctx, "clock", func(ctx context.Context) error {
		return h.SetClock(ctx, time.Now())
	}); err != nil {
		logger.Warn().Err(err).Msg("could not sync camera clock")
	}

	c.state.Store(int32(StateReady))
	logger.Info().Msg("camera connected")

	return c, nil
}

// Identifier returns the stable network identifier of this camera.
func (c *Controller) Identifier() string { return c.id }

// State returns the current connection state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Turbo reports the last-known turbo mode flag.
func (c *Controller) Turbo() bool { return c.turbo.Load() }

// SetShutter engages or disengages recording. Idempotent.
func (c *Controller) SetShutter(ctx context.Context, enabled bool) error {
	op := "shutter_off"
	if enabled {
		op = "shutter_on"
	}

	err := c.command(ctx, op, func(ctx context.Context) error {
		return c.handle.SetShutter(ctx, enabled)
	})
	if err != nil {
		return fmt.Errorf("set shutter %s: %w", c.id, err)
	}

	if enabled {
		c.state.Store(int32(StateRecording))
	} else if c.State() != StateClosed {
		c.state.Store(int32(StateReady))
	}

	return nil
}

// SetTurbo toggles turbo transfer mode and tracks the flag.
func (c *Controller) SetTurbo(ctx context.Context, enabled bool) error {
	err := c.command(ctx, "turbo", func(ctx context.Context) error {
		return c.handle.SetTurbo(ctx, enabled)
	})
	if err != nil {
		return fmt.Errorf("set turbo %s: %w", c.id, err)
	}

	c.turbo.Store(enabled)

	return nil
}

// ListMedia reports every media filename currently on the camera.
func (c *Controller) ListMedia(ctx context.Context) ([]string, error) {
	var files []string

	err := c.command(ctx, "list_media", func(ctx context.Context) error {
		var err error
		files, err = c.handle.ListMedia(ctx)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list media %s: %w", c.id, err)
	}

	return files, nil
}

// DownloadMedia fetches one media file. Downloads run without the
// per-command timeout; retry and cancellation are the caller's job.
func (c *Controller) DownloadMedia(ctx context.Context, filename, destPath string) error {
	return c.longCommand(ctx, "download_media", func(ctx context.Context) error {
		return c.handle.DownloadMedia(ctx, filename, destPath)
	})
}

// DownloadMetadata fetches the telemetry track for one media file.
func (c *Controller) DownloadMetadata(ctx context.Context, filename, destPath string) error {
	return c.longCommand(ctx, "download_metadata", func(ctx context.Context) error {
		return c.handle.DownloadMetadata(ctx, filename, destPath)
	})
}

// Close releases the control channel. Safe to call multiple times.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateClosed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := c.handle.Close(ctx)
	c.state.Store(int32(StateClosed))

	return err
}

// command runs one short control-channel call under the serialization lock
// and the per-command timeout.
func (c *Controller) command(ctx context.Context, op string, fn func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateClosed {
		return cferrors.ErrCameraClosed
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(cctx)

	switch {
	case err == nil:
		metrics.IncCommand(op, "success")
	case errors.Is(err, context.DeadlineExceeded):
		metrics.IncCommand(op, "timeout")

		return fmt.Errorf("%w: %s: %w", cferrors.ErrCommandTimeout, op, err)
	default:
		metrics.IncCommand(op, "error")
	}

	return err
}

// longCommand serializes like command but leaves the deadline to the caller.
func (c *Controller) longCommand(ctx context.Context, op string, fn func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateClosed {
		return cferrors.ErrCameraClosed
	}

	err := fn(ctx)
	if err != nil {
		metrics.IncCommand(op, "error")

		return err
	}

	metrics.IncCommand(op, "success")

	return nil
}

func (c *Controller) closeHandle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, closeTimeout)
	defer cancel()

	if err := c.handle.Close(cctx); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("camera", c.id).Msg("close after failed connect")
	}

	c.state.Store(int32(StateClosed))
}
