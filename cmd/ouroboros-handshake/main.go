// Command ouroboros-handshake dials every host given on the command line,
// performs Handshake, and logs the connect and handshake durations
// separately, matching original_source/examples/ping.rs.
package main

import (
	"flag"
	"log"
	"os"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/AndrewWestberg/cardano-ouroboros-go/internal/cliconfig"
	"github.com/AndrewWestberg/cardano-ouroboros-go/mux"
	"github.com/AndrewWestberg/cardano-ouroboros-go/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	port := flag.Uint("port", 0, "override the configured port")
	magic := flag.Uint("magic", 0, "override the configured network magic")
	flag.Parse()

	cfg, err := cliconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("ouroboros-handshake: loading config: %v", err)
	}
	if *port != 0 {
		cfg.Port = uint16(*port)
	}
	if *magic != 0 {
		cfg.NetworkMagic = uint32(*magic)
	}

	hosts := flag.Args()
	if len(hosts) == 0 {
		hosts = []string{cfg.Host}
	}

	logger := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Prefix:          "ouroboros-handshake",
	})

	var wg sync.WaitGroup
	for _, host := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			ping(logger, host, cfg.Port, cfg.NetworkMagic)
		}(host)
	}
	wg.Wait()
}

func ping(logger *charmlog.Logger, host string, port uint16, magic uint32) {
	start := time.Now()

	t, err := transport.DialTCP(host, port, transport.DefaultConnectTimeout)
	if err != nil {
		logger.Errorf("%s:%d failed: %v", host, port, err)
		return
	}
	connectDuration := time.Since(start)
	defer t.Close()

	ch := mux.New(t)
	confirm, err := ch.Handshake(magic)
	totalDuration := time.Since(start)
	if err != nil {
		logger.Errorf("%s:%d handshake failed: %v (connect: %s, total: %s)",
			host, port, err, connectDuration, totalDuration)
		return
	}

	logger.Infof("%s:%d success! connect_duration: %s, total_duration: %s, confirm: %s",
		host, port, connectDuration, totalDuration, confirm)
}
