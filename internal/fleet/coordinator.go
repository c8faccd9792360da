package fleet

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bavix/camfleet/internal/camera"
	"github.com/bavix/camfleet/internal/config"
	"github.com/bavix/camfleet/internal/discovery"
	cferrors "github.com/bavix/camfleet/internal/errors"
	"github.com/bavix/camfleet/internal/inventory"
	"github.com/bavix/camfleet/internal/metrics"
	"github.com/bavix/camfleet/internal/transfer"
)

// State is the session lifecycle state. Transitions are strictly
// Idle → Armed → Recording → Ended; no transition skips a state.
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateRecording
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Camera is the slice of a camera controller the coordinator drives. It is
// satisfied by *camera.Controller and by test fakes.
type Camera interface {
	Identifier() string
	State() camera.State
	Turbo() bool
	SetShutter(ctx context.Context, enabled bool) error
	SetTurbo(ctx context.Context, enabled bool) error
	ListMedia(ctx context.Context) ([]string, error)
	DownloadMedia(ctx context.Context, filename, destPath string) error
	DownloadMetadata(ctx context.Context, filename, destPath string) error
	Close() error
}

// ListenFunc opens the advertisement listener for discovery. A setup
// failure here is fatal to arming.
type ListenFunc func(ctx context.Context) (discovery.Listener, error)

// ConnectFunc connects one discovered identifier.
type ConnectFunc func(ctx context.Context, identifier string) (Camera, error)

// CameraInfo is a read-only view of one connected camera for reporting.
type CameraInfo struct {
	Identifier string `json:"identifier"`
	State      string `json:"state"`
	Turbo      bool   `json:"turbo"`
}

// Coordinator owns the connected camera set and drives the session state
// machine. Lifecycle calls arrive serially from the host; the status API
// reads concurrently. The camera set is populated during arming only and is
// read-only afterwards, so the lock guards field commits, never the network
// fan-outs themselves.
type Coordinator struct {
	cfg        *config.Config
	storageDir string
	listen     ListenFunc
	connect    ConnectFunc
	discoverer *discovery.Discoverer

	mu       sync.RWMutex
	state    State
	cameras  []Camera
	pre      inventory.Snapshot
	manifest map[string][]string
	results  []transfer.Result
}

// New builds a Coordinator in the Idle state. storageDir must already exist.
func New(cfg *config.Config, storageDir string, listen ListenFunc, connect ConnectFunc) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		storageDir: storageDir,
		listen:     listen,
		connect:    connect,
		discoverer: discovery.New(cfg.Discovery.Quiescence),
		state:      StateIdle,
	}
}

// State returns the current session state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Cameras returns a snapshot of the connected cameras for reporting.
func (c *Coordinator) Cameras() []CameraInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CameraInfo, 0, len(c.cameras))
	for _, cam := range c.cameras {
		out = append(out, CameraInfo{
			Identifier: cam.Identifier(),
			State:      cam.State().String(),
			Turbo:      cam.Turbo(),
		})
	}

	return out
}

// Manifest returns the newly captured files recorded at session end, or nil
// before the session ended.
func (c *Coordinator) Manifest() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.manifest == nil {
		return nil
	}

	out := make(map[string][]string, len(c.manifest))
	for id, files := range c.manifest {
		out[id] = append([]string(nil), files...)
	}

	return out
}

// Results returns the per-artifact transfer outcomes of the ended session.
func (c *Coordinator) Results() []transfer.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]transfer.Result(nil), c.results...)
}

func (c *Coordinator) requireState(want State, sentinel error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != want {
		return fmt.Errorf("%w: state is %s", sentinel, c.state)
	}

	return nil
}

// Arm discovers cameras, connects them with bounded parallelism, stops any
// stale recording, and captures the baseline media inventory. A camera whose
// connect fails is dropped with a warning; zero connected cameras is a valid
// session that will simply record nothing. Discovery transport failure is
// fatal.
func (c *Coordinator) Arm(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if err := c.requireState(StateIdle, cferrors.ErrSessionNotIdle); err != nil {
		return err
	}

	started := time.Now()

	listener, err := c.listen(ctx)
	if err != nil {
		return fmt.Errorf("arm: %w", err)
	}

	defer func() { _ = listener.Close() }()

	ids, err := c.discoverer.Discover(ctx, listener)
	if err != nil {
		return fmt.Errorf("arm: discovery interrupted: %w", err)
	}

	logger.Info().Int("cameras", len(ids)).Msg("discovery finished")

	cams := c.connectAll(ctx, ids)

	if len(cams) == 0 {
		logger.Warn().Msg("no cameras connected; session will record nothing")
	}

	// A camera left recording by a crashed session would pollute the
	// baseline inventory with a file still being written.
	fanOutShutter(ctx, cams, false)

	pre, _ := snapshotInventories(ctx, cams, true)

	c.mu.Lock()
	c.cameras = cams
	c.pre = pre
	c.state = StateArmed
	c.mu.Unlock()

	metrics.ConnectedCameras.WithLabelValues(metrics.Service()).Set(float64(len(cams)))
	metrics.ReadyGauge.WithLabelValues(metrics.Service()).Set(1)
	metrics.ObservePhase("arm", time.Since(started).Seconds())

	return nil
}

// Start engages every camera's shutter, one goroutine per camera so the
// actual start instants land as close together as scheduling allows. A
// single camera's failure is logged and never rolls back its siblings;
// the session reaches Recording regardless.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.requireState(StateArmed, cferrors.ErrSessionNotArmed); err != nil {
		return err
	}

	started := time.Now()

	fanOutShutter(ctx, c.fleet(), true)

	c.mu.Lock()
	c.state = StateRecording
	c.mu.Unlock()

	metrics.ObservePhase("start", time.Since(started).Seconds())

	return nil
}

// End stops recording, reads post-session inventories, diffs them against
// the baseline, writes the manifest, downloads the new artifacts, and closes
// every camera. Stop strictly precedes the inventory read: listing while a
// camera still records could miss the file being finalized. A manifest write
// failure is structural and fatal; the cameras are still closed.
func (c *Coordinator) End(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if err := c.requireState(StateRecording, cferrors.ErrSessionNotRecording); err != nil {
		return err
	}

	cams := c.fleet()

	defer func() {
		closeAll(ctx, cams)

		c.mu.Lock()
		c.state = StateEnded
		c.mu.Unlock()

		metrics.ConnectedCameras.WithLabelValues(metrics.Service()).Set(0)
		metrics.ReadyGauge.WithLabelValues(metrics.Service()).Set(0)
	}()

	stopStarted := time.Now()

	fanOutShutter(ctx, cams, false)

	metrics.ObservePhase("stop", time.Since(stopStarted).Seconds())

	collectStarted := time.Now()

	post, _ := snapshotInventories(ctx, cams, false)

	c.mu.RLock()
	pre := c.pre
	c.mu.RUnlock()

	fresh, err := inventory.Diff(pre, post)
	if err != nil {
		// Diff still returned results for the consistent cameras.
		logger.Error().Err(err).Msg("inventory inconsistency detected")
	}

	path, err := WriteManifest(c.storageDir, fresh)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	logger.Info().Str("manifest", path).Msg("session manifest written")

	results := c.download(ctx, cams, fresh)

	c.mu.Lock()
	c.manifest = fresh
	c.results = results
	c.mu.Unlock()

	metrics.ObservePhase("collect", time.Since(collectStarted).Seconds())

	return nil
}

func (c *Coordinator) fleet() []Camera {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cameras
}

func (c *Coordinator) connectAll(ctx context.Context, ids []string) []Camera {
	logger := zerolog.Ctx(ctx)

	var (
		mu      sync.Mutex
		cameras []Camera
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Fleet.ConnectParallelism)

	for _, id := range ids {
		g.Go(func() error {
			cam, err := c.connect(gctx, id)
			if err != nil {
				logger.Warn().Err(err).Str("camera", id).Msg("dropping camera: connect failed")

				return nil
			}

			mu.Lock()
			cameras = append(cameras, cam)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	slices.SortFunc(cameras, func(a, b Camera) int {
		return strings.Compare(a.Identifier(), b.Identifier())
	})

	return cameras
}

func (c *Coordinator) download(ctx context.Context, cams []Camera, fresh map[string][]string) []transfer.Result {
	logger := zerolog.Ctx(ctx)

	ts := c.cfg.TransferSettings()
	d := transfer.NewDownloader(c.storageDir, ts.MaxAttempts, ts.Concurrency, ts.Turbo)

	sources := make([]transfer.Source, 0, len(cams))
	for _, cam := range cams {
		sources = append(sources, cam)
	}

	results := d.Collect(ctx, sources, fresh)

	downloaded := 0

	for _, r := range results {
		if r.Downloaded {
			downloaded++
		}
	}

	logger.Info().
		Int("artifacts", len(results)).
		Int("downloaded", downloaded).
		Msg("transfer round finished")

	return results
}

// fanOutShutter issues the shutter command to every camera concurrently and
// waits for all of them. Per-camera errors are logged only; they never
// propagate to sibling cameras or abort the phase.
func fanOutShutter(ctx context.Context, cams []Camera, enabled bool) {
	logger := zerolog.Ctx(ctx)

	var wg sync.WaitGroup

	for _, cam := range cams {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := cam.SetShutter(ctx, enabled); err != nil {
				logger.Warn().
					Err(err).
					Str("camera", cam.Identifier()).
					Bool("enabled", enabled).
					Msg("shutter command failed")
			}
		}()
	}

	wg.Wait()
}

// snapshotInventories lists every camera's media concurrently. With
// emptyOnError, a failed listing records an empty inventory (used for the
// baseline, where a missing entry would later read as an inconsistency);
// otherwise the camera is left out of the snapshot.
func snapshotInventories(ctx context.Context, cams []Camera, emptyOnError bool) (inventory.Snapshot, int) {
	logger := zerolog.Ctx(ctx)

	var (
		mu     sync.Mutex
		failed int
	)

	snap := make(inventory.Snapshot, len(cams))

	var wg sync.WaitGroup

	for _, cam := range cams {
		wg.Add(1)

		go func() {
			defer wg.Done()

			files, err := cam.ListMedia(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed++

				logger.Warn().Err(err).Str("camera", cam.Identifier()).Msg("media listing failed")

				if emptyOnError {
					snap[cam.Identifier()] = []string{}
				}

				return
			}

			snap[cam.Identifier()] = files
		}()
	}

	wg.Wait()

	return snap, failed
}

func closeAll(ctx context.Context, cams []Camera) {
	logger := zerolog.Ctx(ctx)

	for _, cam := range cams {
		if err := cam.Close(); err != nil {
			logger.Warn().Err(err).Str("camera", cam.Identifier()).Msg("close failed")
		}
	}
}
