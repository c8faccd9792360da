package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	cferrors "github.com/bavix/camfleet/internal/errors"
)

const (
	mdnsGroup      = "224.0.0.251"
	mdnsPort       = 5353
	mdnsBufferSize = 9000
	readDeadline   = 500 * time.Millisecond
	requeryEvery   = time.Second
	namesBacklog   = 16
)

// MDNSListener listens for DNS-SD PTR answers for one service type on the
// well-known mDNS multicast group. It periodically re-sends the PTR question
// so cameras that missed the first query still answer.
type MDNSListener struct {
	service string
	conn    *net.UDPConn
	names   chan string
	done    chan struct{}
	once    sync.Once
}

// ListenMDNS opens the multicast socket and starts querying for the given
// service type. Socket setup failure is the fatal discovery error; everything
// after setup is best-effort.
func ListenMDNS(ctx context.Context, service string) (*MDNSListener, error) {
	group := &net.UDPAddr{IP: net.ParseIP(mdnsGroup), Port: mdnsPort}

	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cferrors.ErrDiscoverySetup, err)
	}

	l := &MDNSListener{
		service: dns.Fqdn(service),
		conn:    conn,
		names:   make(chan string, namesBacklog),
		done:    make(chan struct{}),
	}

	if err := l.query(group); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: %w", cferrors.ErrDiscoverySetup, err)
	}

	go l.requeryLoop(ctx, group)
	go l.readLoop(ctx)

	return l, nil
}

// Names returns the channel of advertised instance names.
func (l *MDNSListener) Names() <-chan string { return l.names }

// Close stops the listener. Safe to call multiple times.
func (l *MDNSListener) Close() error {
	var err error

	l.once.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})

	return err
}

func (l *MDNSListener) query(group *net.UDPAddr) error {
	msg := new(dns.Msg)
	msg.SetQuestion(l.service, dns.TypePTR)
	msg.RecursionDesired = false

	packed, err := msg.Pack()
	if err != nil {
		return err
	}

	_, err = l.conn.WriteToUDP(packed, group)

	return err
}

func (l *MDNSListener) requeryLoop(ctx context.Context, group *net.UDPAddr) {
	logger := zerolog.Ctx(ctx)

	ticker := time.NewTicker(requeryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.query(group); err != nil {
				logger.Debug().Err(err).Msg("mdns re-query failed")

				return
			}
		}
	}
}

func (l *MDNSListener) readLoop(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	defer close(l.names)

	buf := make([]byte, mdnsBufferSize)

	for {
		select {
		case <-l.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(readDeadline))

		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			// Socket closed or unrecoverable; the discoverer's quiescence
			// timer terminates the run.
			return
		}

		var msg dns.Msg
		if err := msg.Unpack(buf[:n]); err != nil {
			logger.Debug().Err(err).Msg("dropping unparseable mdns packet")

			continue
		}

		for _, name := range instancesFromMsg(&msg, l.service) {
			select {
			case l.names <- name:
			case <-l.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// instancesFromMsg extracts service instance names from PTR answers matching
// the service type, with the service suffix removed.
func instancesFromMsg(msg *dns.Msg, service string) []string {
	var out []string

	records := make([]dns.RR, 0, len(msg.Answer)+len(msg.Extra))
	records = append(records, msg.Answer...)
	records = append(records, msg.Extra...)

	for _, rr := range records {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}

		if !strings.EqualFold(ptr.Hdr.Name, service) {
			continue
		}

		out = append(out, strings.TrimSuffix(ptr.Ptr, "."+service))
	}

	return out
}
