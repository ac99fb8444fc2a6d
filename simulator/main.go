// Command simulator runs a fake dispenser against a real broker. It is used
// for manual testing and demos: point the engine and the simulator at the
// same broker and device id, and every dispense command gets acknowledged.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var strat AckStrategy
	switch {
	case cfg.Legacy:
		strat = LegacyAck{Delay: cfg.AckLatency}
	case cfg.DropRate > 0:
		strat = RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate}
	default:
		strat = AutoAck{Delay: cfg.AckLatency}
	}

	dev := &Device{
		ID:        cfg.DeviceID,
		Broker:    cfg.Broker,
		Strategy:  strat,
		Magazines: NewMagazines(cfg.Slots, cfg.Pills),
	}
	if err := dev.Run(ctx); err != nil {
		log.Fatalf("device %s: %v", cfg.DeviceID, err)
	}
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.DeviceID, "device-id", "01", "device identifier")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "ack latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "ack drop rate")
	flag.BoolVar(&cfg.Legacy, "legacy", false, "answer with a bare true payload")
	flag.IntVar(&cfg.Pills, "pills", 50, "initial pills per magazine slot")
	flag.IntVar(&cfg.Slots, "slots", 2, "number of magazine slots")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}
