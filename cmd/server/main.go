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

	"github.com/npezzotti/go-chatserver/internal/api"
	"github.com/npezzotti/go-chatserver/internal/backup"
	"github.com/npezzotti/go-chatserver/internal/config"
	"github.com/npezzotti/go-chatserver/internal/server"
	"github.com/npezzotti/go-chatserver/internal/state"
	"github.com/npezzotti/go-chatserver/internal/stats"
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
	snapshotPath   string
	telegramToken  string
	telegramChatId string
	allowedOrigins stringSliceFlag
)

func main() {
	config.LoadEnv()

	defaultAddr := "localhost:8080"
	if port := os.Getenv("PORT"); port != "" {
		defaultAddr = ":" + port
	}

	flag.StringVar(&addr, "addr", defaultAddr, "server address")
	flag.StringVar(&snapshotPath, "snapshot-path", config.EnvOrDefault("SNAPSHOT_PATH", "snapshot.json"),
		"local snapshot path (plain JSON file, or sqlite:// for a sqlite store)")
	flag.StringVar(&telegramToken, "telegram-token", config.EnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
		"telegram bot token for the remote backup channel (empty disables remote backup)")
	flag.StringVar(&telegramChatId, "telegram-chat-id", config.EnvOrDefault("TELEGRAM_CHAT_ID", ""),
		"telegram chat id for the remote backup channel")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chat-server] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, snapshotPath, telegramToken, telegramChatId, allowedOrigins)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	store, err := backup.OpenSnapshotStore(cfg.SnapshotPath)
	if err != nil {
		logger.Fatal("snapshot store: ", err)
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	var channel backup.BackupChannel
	var writer *backup.Writer
	if cfg.RemoteBackupEnabled() {
		tg := backup.NewTelegramChannel(cfg.TelegramToken, cfg.TelegramChatId, logger)
		channel = tg
		writer = backup.NewWriter(tg, logger, statsUpdater)
	} else {
		logger.Println("remote backup disabled: no telegram credentials")
	}

	persister := backup.NewPersister(store, channel, writer, logger)

	st := state.New()
	st.Restore(persister.Recover())

	chatServer, err := server.NewChatServer(logger, st, persister, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewServer(mux, logger, chatServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	if writer != nil {
		writer.Run()
	}

	go chatServer.Run()

	persister.Announce("server started on " + cfg.ServerAddr)

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
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	if err := persister.Close(); err != nil {
		logger.Println("persister close:", err)
	}

	logger.Println("shutdown complete")
}
