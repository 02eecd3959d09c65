package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emberdb/internal/config"
	"emberdb/internal/db"
	"emberdb/internal/server"
	"emberdb/pkg/logger"
)

var configPath = flag.String("config", "", "path to a yaml config file, overrides "+config.EnvConfigFile)

func main() {
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config failed", "error", err)
	}

	if err := logger.Init(conf.Log.Level, conf.Log.File); err != nil {
		logger.Fatal("init logger failed", "error", err)
	}
	defer logger.Sync()

	database, err := db.Open(conf)
	if err != nil {
		logger.Fatal("open db failed", "dir", conf.Dir, "error", err)
	}

	srv := server.New(database, conf.Server.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := database.Close(); err != nil {
		logger.Error("close db failed", "error", err)
	}
}
