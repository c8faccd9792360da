package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bavix/camfleet/internal/metrics"
)

// Discoverer collects distinct camera identifiers from an advertisement
// listener. It stops once no advertisement has arrived for the configured
// quiescence window; the window resets on every arrival, so the total run
// time is unbounded while cameras keep answering.
type Discoverer struct {
	quiescence time.Duration
}

// New creates a Discoverer with the given quiescence window.
func New(quiescence time.Duration) *Discoverer {
	return &Discoverer{quiescence: quiescence}
}

// Discover accumulates identifiers from the listener until the quiescence
// window elapses without a new arrival. An empty result is valid: it means
// no camera answered, not that discovery failed.
func (d *Discoverer) Discover(ctx context.Context, l Listener) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	seen := make(map[string]struct{})
	ids := make([]string, 0)

	timer := time.NewTimer(d.quiescence)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ids, ctx.Err()

		case name, ok := <-l.Names():
			if !ok {
				return ids, nil
			}

			id := BareIdentifier(name)
			if id == "" {
				continue
			}

			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)

				logger.Info().Str("camera", id).Str("advertised", name).Msg("camera discovered")

				if metrics.M.DiscoveredCameras != nil {
					metrics.M.DiscoveredCameras.Inc()
				}
			}

			// Any arrival resets the window, duplicates included: the
			// network is still talking to us.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			timer.Reset(d.quiescence)

		case <-timer.C:
			return ids, nil
		}
	}
}

// BareIdentifier strips everything after the first label of an advertised
// service instance name. Cameras advertise the same identifier on IPv4 and
// IPv6 with differing suffixes; the first label is the stable part.
func BareIdentifier(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}

	return name
}
