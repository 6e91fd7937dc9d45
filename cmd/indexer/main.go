package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/dogeindexer/internal/api"
	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/config"
	"github.com/rawblock/dogeindexer/internal/logging"
	"github.com/rawblock/dogeindexer/internal/metrics"
	"github.com/rawblock/dogeindexer/internal/nodeclient"
	"github.com/rawblock/dogeindexer/internal/query"
	"github.com/rawblock/dogeindexer/internal/store"
	"github.com/rawblock/dogeindexer/internal/updater"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		// The logger may not be configured yet; stderr is all we have.
		println("config:", err.Error())
		os.Exit(1)
	}

	logging.Configure(cfg.Logging.Level)
	defer logging.Sync()
	log := logging.For("main")

	params := chain.ParamsForNetwork(os.Getenv("NETWORK"))

	if path := os.Getenv("EPOCH_TABLE"); path != "" {
		if err := chain.LoadEpochTable(path); err != nil {
			log.Fatalw("load epoch table", "err", err)
		}
	}

	db, err := store.Open(store.Options{Directory: cfg.Store.Directory})
	if err != nil {
		log.Fatalw("open store", "err", err)
	}
	defer db.Close()

	client, err := nodeclient.NewRPCClient(nodeclient.Config{
		Host: cfg.RPC.Host,
		User: cfg.RPC.User,
		Pass: cfg.RPC.Pass,
		TLS:  cfg.RPC.TLS,
	})
	if err != nil {
		log.Fatalw("connect to node", "err", err)
	}
	defer client.Shutdown()

	m := metrics.New()

	hub := api.NewHub()
	go hub.Run()

	idx := updater.New(db, client, params, cfg.Index, cfg.Fetcher.Parallelism, m)
	idx.OnBlock = func(event updater.BlockEvent) {
		if data, err := json.Marshal(event); err == nil {
			hub.Broadcast(data)
		}
	}

	queries := query.New(db)
	router := api.SetupRouter(queries, hub)
	server := &http.Server{Addr: cfg.API.ListenAddress, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infow("serving API", "addr", cfg.API.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("api server", "err", err)
			stop()
		}
	}()

	log.Infow("indexing",
		"store", cfg.Store.Directory,
		"rpc", cfg.RPC.Host,
		"parallelism", cfg.Fetcher.Parallelism,
		"dunes", cfg.Index.Dunes,
		"inscriptions", cfg.Index.Inscriptions,
		"drc20", cfg.Index.Drc20,
	)

	err = idx.Run(ctx)

	// Listeners drain before the process exits so in-flight reads
	// finish against the final committed state.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	switch {
	case err == nil || errors.Is(err, context.Canceled):
		log.Infow("shutdown complete")
	case errors.Is(err, updater.ErrUnrecoverableReorg):
		log.Errorw("chain reorganized beyond recovery; delete the store and re-index")
		os.Exit(2)
	default:
		log.Errorw("indexer stopped", "err", err)
		os.Exit(1)
	}
}
