// Package plugin binds the fleet coordinator to the host process's session
// lifecycle. The host sees three synchronous entry points: plugin init,
// session started, session ended. Each blocks until the coordinator's
// fan-out for that phase completes.
package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Name is how the host addresses this plugin.
const Name = "camfleet"

const (
	videosSubdir = "Videos"
	storagePerm  = 0o750
)

// HostSession is the slice of the host's session object the plugin needs.
type HostSession interface {
	// StorageDirectory is the session's root storage path.
	StorageDirectory() string
}

// SessionDriver is implemented by *fleet.Coordinator.
type SessionDriver interface {
	Arm(ctx context.Context) error
	Start(ctx context.Context) error
	End(ctx context.Context) error
}

// Plugin drives one recording session on behalf of the host.
type Plugin struct {
	ctx        context.Context //nolint:containedctx // host lifecycle calls carry no context
	driver     SessionDriver
	storageDir string
}

// New is the plugin-init entry point. It resolves the video storage
// directory under the host session's storage root, creates it (recursively,
// idempotent), and arms the fleet. A storage or discovery-transport failure
// is fatal and surfaces to the host.
func New(ctx context.Context, host HostSession, build func(storageDir string) SessionDriver) (*Plugin, error) {
	dir := filepath.Join(host.StorageDirectory(), videosSubdir)

	if err := os.MkdirAll(dir, storagePerm); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	p := &Plugin{
		ctx:        ctx,
		driver:     build(dir),
		storageDir: dir,
	}

	if err := p.driver.Arm(ctx); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("storage", dir).Msg("plugin armed")

	return p, nil
}

// Name returns the plugin name the host registers.
func (p *Plugin) Name() string { return Name }

// StorageDir returns the resolved video storage directory.
func (p *Plugin) StorageDir() string { return p.storageDir }

// SessionStarted engages recording on the whole fleet.
func (p *Plugin) SessionStarted() error {
	return p.driver.Start(p.ctx)
}

// SessionEnded stops recording, collects the new artifacts and releases
// every camera.
func (p *Plugin) SessionEnded() error {
	return p.driver.End(p.ctx)
}
