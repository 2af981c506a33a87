package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndrewWestberg/cardano-ouroboros-go/chainsync"
	"github.com/AndrewWestberg/cardano-ouroboros-go/transport"
)

// pipeTransport wraps independent reader/writer so a test can script
// peer responses without a real socket.
type pipeTransport struct {
	r io.Reader
	w io.Writer
}

func (p *pipeTransport) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeTransport) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeTransport) Close() error                { return nil }

func TestDialFailureBacksOffAndRetries(t *testing.T) {
	var attempts int32

	s := New(Config{
		NetworkMagic: 764824073,
		Dial: func(ctx context.Context) (transport.Transport, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, errors.New("refused")
		},
		Mode: chainsync.Sync,
	})

	notified := make(chan error, 4)
	s.cfg.OnConnFn = func(err error) { notified <- err }

	s.Start()
	defer s.Halt()

	for i := 0; i < 2; i++ {
		select {
		case err := <-notified:
			require.Error(t, err)
		case <-time.After(retryIncrement + 2*time.Second):
			t.Fatal("expected dial failure notifications")
		}
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestRunOnceReturnsHandshakeError(t *testing.T) {
	var buf bytes.Buffer

	s := New(Config{NetworkMagic: 1, Mode: chainsync.Sync})
	tr := &pipeTransport{r: &buf, w: io.Discard}
	err := s.runOnce(tr)
	require.Error(t, err)
}
