// Package gopro implements camera.Handle over the wired GoPro HTTP command
// surface. The orchestration layer never imports this package directly; it
// is wired in as a factory at startup.
package gopro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bavix/camfleet/internal/transfer"
)

var errNoSerialDigits = errors.New("identifier carries no usable serial digits")

const (
	// Video preset group per the Open GoPro spec.
	presetGroupVideo = "1000"

	wiredPort       = "8080"
	downloadTimeout = 0 // downloads use the caller's context, no client timeout
)

// Client talks to one wired camera. The USB network address is derived from
// the last three digits of the camera serial, which the camera also embeds
// in its advertised identifier.
type Client struct {
	base string
	http *http.Client
}

// New derives the camera's wired address from its identifier and returns a
// client for it. No network traffic happens until Open.
func New(identifier string) (*Client, error) {
	d, err := serialDigits(identifier)
	if err != nil {
		return nil, err
	}

	return &Client{
		base: fmt.Sprintf("http://172.2%c.1%c%c.51:%s", d[0], d[1], d[2], wiredPort),
		http: &http.Client{Timeout: downloadTimeout},
	}, nil
}

// serialDigits returns the last three decimal digits of the identifier.
func serialDigits(identifier string) ([3]byte, error) {
	var out [3]byte

	n := 0

	for i := len(identifier) - 1; i >= 0 && n < 3; i-- {
		ch := identifier[i]
		if ch >= '0' && ch <= '9' {
			out[2-n] = ch
			n++
		}
	}

	if n < 3 {
		return out, fmt.Errorf("%w: %q", errNoSerialDigits, identifier)
	}

	return out, nil
}

// Open verifies the control channel by fetching the camera state.
func (c *Client) Open(ctx context.Context) error {
	return c.get(ctx, "/gopro/camera/state")
}

// LoadVideoPreset selects the video preset group.
func (c *Client) LoadVideoPreset(ctx context.Context) error {
	return c.get(ctx, "/gopro/camera/presets/set_group?id="+presetGroupVideo)
}

// SetShutter engages or disengages recording.
func (c *Client) SetShutter(ctx context.Context, enabled bool) error {
	if enabled {
		return c.get(ctx, "/gopro/camera/shutter/start")
	}

	return c.get(ctx, "/gopro/camera/shutter/stop")
}

// SetTurbo toggles turbo transfer mode.
func (c *Client) SetTurbo(ctx context.Context, enabled bool) error {
	p := "0"
	if enabled {
		p = "1"
	}

	return c.get(ctx, "/gopro/media/turbo_transfer?p="+p)
}

// SetClock synchronizes the camera clock.
func (c *Client) SetClock(ctx context.Context, now time.Time) error {
	return c.get(ctx, fmt.Sprintf("/gopro/camera/set_date_time?date=%s&time=%s",
		now.Format("2006_01_02"), now.Format("15_04_05")))
}

type mediaList struct {
	Media []struct {
		Directory string `json:"d"`
		Files     []struct {
			Name string `json:"n"`
		} `json:"fs"`
	} `json:"media"`
}

// ListMedia reports every media file as "<directory>/<name>", in the
// camera's reported ordering.
func (c *Client) ListMedia(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, "/gopro/media/list")
	if err != nil {
		return nil, err
	}

	defer func() { _ = resp.Body.Close() }()

	var list mediaList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode media list: %w", err)
	}

	files := make([]string, 0)

	for _, dir := range list.Media {
		for _, f := range dir.Files {
			files = append(files, dir.Directory+"/"+f.Name)
		}
	}

	return files, nil
}

// DownloadMedia streams one media file to destPath. Local filesystem
// failures are permanent: retrying the network will not fix a full disk.
func (c *Client) DownloadMedia(ctx context.Context, filename, destPath string) error {
	return c.fetchToFile(ctx, "/videos/DCIM/"+filename, destPath)
}

// DownloadMetadata streams the GPMF telemetry track for one media file.
func (c *Client) DownloadMetadata(ctx context.Context, filename, destPath string) error {
	return c.fetchToFile(ctx, "/gopro/media/gpmf?path="+filename, destPath)
}

// Close releases the control channel. The wired control surface is
// stateless HTTP; there is nothing to tear down on the camera side.
func (c *Client) Close(_ context.Context) error {
	c.http.CloseIdleConnections()

	return nil
}

func (c *Client) fetchToFile(ctx context.Context, path, destPath string) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}

	defer func() { _ = resp.Body.Close() }()

	f, err := os.Create(destPath) //nolint:gosec // destination lives under the session storage dir
	if err != nil {
		return transfer.Permanent(err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(destPath)

		return fmt.Errorf("download %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return transfer.Permanent(err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return nil
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()

		return nil, fmt.Errorf("camera returned %s for %s", resp.Status, path)
	}

	return resp, nil
}
