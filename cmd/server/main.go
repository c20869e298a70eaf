package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/chitchat-backend/chitchat-server/internal/api"
	"github.com/chitchat-backend/chitchat-server/internal/config"
	"github.com/chitchat-backend/chitchat-server/internal/server"
	"github.com/chitchat-backend/chitchat-server/internal/stats"
	"github.com/chitchat-backend/chitchat-server/internal/store"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	// .env is optional, flags and CHITCHAT_* env vars take over from here
	godotenv.Load()

	env, err := config.FromEnv()
	if err != nil {
		log.Fatal("env:", err)
	}

	flag.StringVar(&addr, "addr", env.ServerAddr, "server address")
	flag.StringVar(&dsn, "dsn", env.DatabaseDSN, "database connection string")
	flag.StringVar(&signingKey, "signing-key", env.SigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = env.AllowedOrigins
	}

	logger := log.New(os.Stderr, "[chitchat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	chatStore, err := store.NewPgChatStore(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := chatStore.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	coordinator, err := server.NewCoordinatorServer(logger, chatStore, statsUpdater)
	if err != nil {
		logger.Fatal("new coordinator server:", err)
	}

	srv := api.NewChitChatApp(mux, logger, coordinator, chatStore, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go coordinator.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down coordinator...")
	if err := coordinator.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("coordinator shutdown:", err)
	}

	logger.Println("shutdown complete")
}
