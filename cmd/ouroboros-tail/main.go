// Command ouroboros-tail dials a single peer, handshakes, then runs
// ChainSync in SendTip mode, logging every tip reached, matching
// original_source/examples/tip.rs. Unlike the example, it runs inside a
// reconnecting session so a dropped connection is retried with backoff.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	charmlog "github.com/charmbracelet/log"

	"github.com/AndrewWestberg/cardano-ouroboros-go/chainsync"
	"github.com/AndrewWestberg/cardano-ouroboros-go/internal/cliconfig"
	"github.com/AndrewWestberg/cardano-ouroboros-go/session"
	"github.com/AndrewWestberg/cardano-ouroboros-go/transport"
)

type logNotifier struct {
	log *charmlog.Logger
}

func (n *logNotifier) NotifyTip(tip chainsync.Tip, header chainsync.BlockHeader) {
	n.log.Infof("tip reached: slot=%d block=%d hash=%x", tip.SlotNumber, tip.BlockNumber, tip.Hash)
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	host := flag.String("host", "", "override the configured host")
	port := flag.Uint("port", 0, "override the configured port")
	magic := flag.Uint("magic", 0, "override the configured network magic")
	socketPath := flag.String("socket", "", "dial a local Unix socket instead of TCP")
	flag.Parse()

	cfg, err := cliconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("ouroboros-tail: loading config: %v", err)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = uint16(*port)
	}
	if *magic != 0 {
		cfg.NetworkMagic = uint32(*magic)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "ouroboros-tail",
	})

	dial := func(ctx context.Context) (transport.Transport, error) {
		if cfg.SocketPath != "" {
			return transport.DialUnix(cfg.SocketPath)
		}
		return transport.DialTCP(cfg.Host, cfg.Port, transport.DefaultConnectTimeout)
	}

	sess := session.New(session.Config{
		NetworkMagic: cfg.NetworkMagic,
		Dial:         dial,
		Mode:         chainsync.SendTip,
		Notify:       &logNotifier{log: logger},
		OnConnFn: func(err error) {
			if err != nil {
				logger.Warnf("connection ended: %v", err)
			}
		},
	})
	sess.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	logger.Infof("shutting down")
	sess.Halt()
}
