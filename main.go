package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Marquee/internal"
	"github.com/hbomb79/Marquee/internal/storage"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var log = logger.Get("Bootstrap")

// main() is the entry point to the program. From here we load the users
// Marquee configuration (YAML file, .env and environment variables) and
// run the services until an interrupt or SIGTERM is received.
func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (defaults to environment only)")
	ephemeral := flag.Bool("ephemeral", false, "keep all client state in memory, discarding it on exit")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *ephemeral {
		config.Storage.Driver = storage.MemoryDriver
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	marquee, err := internal.New(ctx, *config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Marquee: %v\n", err)
		os.Exit(1)
	}

	if err := marquee.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Marquee exited with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Marquee shut down\n")
}
