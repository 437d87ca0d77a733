package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tankwars/config"
	"tankwars/logging"
	"tankwars/server"
	"tankwars/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tankwars:", err)
		os.Exit(1)
	}
}

func run() error {
	rt, err := config.LoadEnv()
	if err != nil {
		return err
	}

	port := flag.Int("port", rt.GamePort, "TCP port players connect to")
	httpAddr := flag.String("http", rt.HTTPAddr, "HTTP listen address for spectators and ops (empty disables)")
	settingsPath := flag.String("settings", rt.SettingsPath, "Path to the XML game settings")
	logFile := flag.String("log", rt.LogFile, "Rolling log file (empty disables)")
	dbPath := flag.String("db", rt.DBPath, "SQLite score database (empty disables)")
	joinHost := flag.String("join-host", "", "Host advertised by /qr (default: hostname)")
	debug := flag.Bool("debug", rt.Debug, "Debug logging")
	flag.Parse()

	settings, err := config.LoadSettings(*settingsPath)
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Options{File: *logFile, Console: true, Debug: *debug}); err != nil {
		return err
	}
	defer logging.Sync()

	var (
		db       *store.DB
		recorder *store.Recorder
	)
	if *dbPath != "" {
		if db, err = store.Open(*dbPath); err != nil {
			return err
		}
		defer db.Close()
		recorder = store.NewRecorder(db)
		defer recorder.Stop()
	}

	srv := server.New(server.Options{Settings: settings, Recorder: recorder, DB: db})
	if err := srv.Listen(*port); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpSrv *http.Server
	if *httpAddr != "" {
		host := *joinHost
		if host == "" {
			host, _ = os.Hostname()
		}
		joinAddr := net.JoinHostPort(host, strconv.Itoa(srv.Port()))
		httpSrv = &http.Server{Addr: *httpAddr, Handler: server.SetupRoutes(srv, joinAddr)}
		go func() {
			logging.Log.Infow("http listening", "addr", *httpAddr, "join", joinAddr)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Log.Errorw("http server", "err", err)
				stop()
			}
		}()
	}

	if err := srv.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Log.Info("shutting down")

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logging.Log.Warnw("http shutdown", "err", err)
		}
	}
	return nil
}
