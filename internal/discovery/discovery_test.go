package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/camfleet/internal/discovery"
)

type scriptedListener struct {
	names chan string
}

func newScriptedListener() *scriptedListener {
	return &scriptedListener{names: make(chan string, 32)}
}

func (l *scriptedListener) Names() <-chan string { return l.names }

func (l *scriptedListener) Close() error { return nil }

func TestDiscoverDedupes(t *testing.T) {
	t.Parallel()

	l := newScriptedListener()
	l.names <- "GoPro 1001._gopro-web._tcp.local."
	l.names <- "GoPro 1001._gopro-web._tcp.local." // IPv6 twin
	l.names <- "GoPro 2002._gopro-web._tcp.local."
	l.names <- "GoPro 1001._gopro-web._tcp.local."
	close(l.names)

	d := discovery.New(50 * time.Millisecond)

	ids, err := d.Discover(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, []string{"GoPro 1001", "GoPro 2002"}, ids)
}

func TestDiscoverQuiescenceTerminates(t *testing.T) {
	t.Parallel()

	l := newScriptedListener()
	l.names <- "GoPro 1001.x.local."

	d := discovery.New(50 * time.Millisecond)

	start := time.Now()

	ids, err := d.Discover(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, []string{"GoPro 1001"}, ids)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDiscoverQuiescenceResetsOnArrival(t *testing.T) {
	t.Parallel()

	l := newScriptedListener()
	d := discovery.New(100 * time.Millisecond)

	// Feed a new name just before each expiry; discovery must keep going.
	go func() {
		for i, name := range []string{"a.local.", "b.local.", "c.local."} {
			time.Sleep(time.Duration(i) * 70 * time.Millisecond)
			l.names <- name
		}
	}()

	ids, err := d.Discover(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestDiscoverZeroDevices(t *testing.T) {
	t.Parallel()

	l := newScriptedListener()
	d := discovery.New(30 * time.Millisecond)

	ids, err := d.Discover(context.Background(), l)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
}

func TestDiscoverContextCancelled(t *testing.T) {
	t.Parallel()

	l := newScriptedListener()
	l.names <- "a.local."

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := discovery.New(time.Minute)

	_, err := d.Discover(ctx, l)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBareIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "service suffix stripped", in: "GoPro 1001._gopro-web._tcp.local.", want: "GoPro 1001"},
		{name: "no suffix", in: "GoPro 1001", want: "GoPro 1001"},
		{name: "leading whitespace", in: "  GoPro 1001.local.", want: "GoPro 1001"},
		{name: "empty", in: "", want: ""},
		{name: "only dots", in: "...", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, discovery.BareIdentifier(tt.in))
		})
	}
}
