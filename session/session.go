// Package session drives a reconnecting ChainSync client: dial, handshake,
// run ChainSync to completion or failure, back off, and redial.
//
// Grounded on client2/connection.go's connectWorker/doConnect: the same
// atomic retry-delay counter, 15 second increment, 2 minute cap, and
// worker.Worker-style goroutine lifecycle (here internal/workerutil, since
// core/worker itself was never part of the retrieval pack).
package session

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/AndrewWestberg/cardano-ouroboros-go/chainsync"
	"github.com/AndrewWestberg/cardano-ouroboros-go/internal/workerutil"
	"github.com/AndrewWestberg/cardano-ouroboros-go/mux"
	"github.com/AndrewWestberg/cardano-ouroboros-go/transport"
)

const (
	retryIncrement = 15 * time.Second
	maxRetryDelay  = 2 * time.Minute
)

// DialFunc opens a fresh transport for one connection attempt.
type DialFunc func(ctx context.Context) (transport.Transport, error)

// Config configures a Session.
type Config struct {
	NetworkMagic uint32
	Dial         DialFunc
	Mode         chainsync.Mode
	Store        chainsync.BlockStore
	Notify       chainsync.Notifier

	// OnConnFn, if set, is invoked after every connection attempt ends,
	// with nil on a handshake success followed by a clean ChainSync Done,
	// or the error that ended the attempt.
	OnConnFn func(error)
}

// Session owns the reconnect loop. It is not safe for concurrent Start
// calls; Halt is safe to call once from any goroutine.
type Session struct {
	workerutil.Worker

	cfg        Config
	log        *charmlog.Logger
	retryDelay int64 // atomic time.Duration
}

// New constructs a Session. Call Start to begin connecting. Each Session
// gets a random id plumbed into every log line so an operator running
// several reconnect loops can tell their log output apart.
func New(cfg Config) *Session {
	base := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "session",
	})
	return &Session{
		cfg: cfg,
		log: base.With("session_id", uuid.NewString()),
	}
}

// Start begins the reconnect loop in the background. Call Halt to stop it.
func (s *Session) Start() {
	s.Go(s.worker)
}

func (s *Session) worker() {
	defer s.log.Debugf("reconnect loop terminated")

	for {
		select {
		case <-s.HaltCh():
			return
		case <-time.After(time.Duration(atomic.LoadInt64(&s.retryDelay))):
		}

		t, err := s.cfg.Dial(context.Background())
		if err != nil {
			s.log.Warnf("dial failed: %v", err)
			s.backOff()
			s.notify(err)
			continue
		}

		atomic.StoreInt64(&s.retryDelay, 0)
		err = s.runOnce(t)
		s.notify(err)

		select {
		case <-s.HaltCh():
			return
		default:
		}
	}
}

func (s *Session) backOff() {
	next := atomic.AddInt64(&s.retryDelay, int64(retryIncrement))
	if next > int64(maxRetryDelay) {
		atomic.StoreInt64(&s.retryDelay, int64(maxRetryDelay))
	}
}

func (s *Session) notify(err error) {
	if s.cfg.OnConnFn != nil {
		s.cfg.OnConnFn(err)
	}
}

// runOnce drives one connection through Handshake then ChainSync to
// completion, closing the transport on return.
func (s *Session) runOnce(t transport.Transport) error {
	defer t.Close()

	ch := mux.New(t)
	if _, err := ch.Handshake(s.cfg.NetworkMagic); err != nil {
		s.log.Errorf("handshake failed: %v", err)
		return err
	}
	s.log.Infof("handshake complete, starting chain-sync")

	cs := chainsync.New(s.cfg.Mode, s.cfg.NetworkMagic, s.cfg.Store, s.cfg.Notify)
	if _, err := ch.Execute(cs); err != nil {
		s.log.Warnf("chain-sync ended: %v", err)
		return err
	}
	return nil
}
