package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fnscope/fnscope/internal/infrastructure/config"
	"github.com/fnscope/fnscope/internal/infrastructure/logging"
	"github.com/fnscope/fnscope/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	port := flag.String("port", "", "Override listen port")
	flag.Parse()

	cfg := loadConfig(*configPath)
	if *port != "" {
		cfg.Server.Port = *port
	}

	logCfg := logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	srv, err := server.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Sugar().Errorf("shutdown error: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}

func loadConfig(path string) *config.Config {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
		return cfg
	}
	return config.LoadOrDefault()
}
