// Command reservoir runs the chat-completions proxy and its
// operational CLI surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/reservoir/internal/cli"
	"github.com/example/reservoir/internal/config"
	"github.com/example/reservoir/internal/embedding"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/httpapi"
	"github.com/example/reservoir/internal/persistence"
	"github.com/example/reservoir/internal/pipeline"
	"github.com/example/reservoir/internal/platform/logger"
	"github.com/example/reservoir/internal/platform/neo4jdb"
	"github.com/example/reservoir/internal/retrieval"
	"github.com/example/reservoir/internal/tokens"
	"github.com/example/reservoir/internal/upstream"
)

func main() {
	log, err := logger.New(os.Getenv("RESERVOIR_ENV"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", "error", err.Error())
	}

	graphClient, err := neo4jdb.New(neo4jdb.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
	}, log)
	if err != nil {
		log.Fatal("neo4j connect failed", "error", err.Error())
	}
	defer graphClient.Close(context.Background())

	embed, err := selectEmbedder(log)
	if err != nil {
		log.Fatal("embedder init failed", "error", err.Error())
	}

	store := graphstore.NewNeo4jStore(graphClient, log, embed.IndexName(), embed.Dims())
	if err := store.EnsureDefaultIndex(context.Background()); err != nil {
		log.Warn("ensure_vector_index failed", "error", err.Error())
	}

	deps := pipeline.Deps{
		Tokens:      tokens.New(),
		Embed:       embed,
		Store:       store,
		Upstream:    upstream.New(log, 60*time.Second),
		Retrieval:   retrieval.New(embed, store, log),
		Persistence: persistence.New(embed, store, log),
		Log:         log,
	}

	root := cli.NewRoot(cli.Deps{
		Log:   log,
		Store: store,
		Embed: embed,
		StartServer: func(ctx context.Context, ollamaMode bool) error {
			return serve(ctx, deps, log, cfg.ReservoirPort, ollamaMode)
		},
	})

	if len(os.Args) == 1 {
		// Bare invocation serves, so container entrypoints need no
		// subcommand.
		if err := serve(context.Background(), deps, log, cfg.ReservoirPort, false); err != nil {
			log.Fatal("server exited", "error", err.Error())
		}
		return
	}

	if err := root.Execute(); err != nil {
		log.Fatal("command failed", "error", err.Error())
	}
}

func serve(ctx context.Context, deps pipeline.Deps, log *logger.Logger, configuredPort int, ollamaMode bool) error {
	server := httpapi.New(deps, log)

	port := configuredPort
	if ollamaMode {
		port = 11434
	}
	addr := ":" + strconv.Itoa(port)
	log.Info("reservoir listening", "addr", addr, "ollama_mode", ollamaMode)

	httpServer := &http.Server{Addr: addr, Handler: server.Engine}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// selectEmbedder picks the Remote or Local embedding variant from the
// RSV_EMBEDDER environment variable.
func selectEmbedder(log *logger.Logger) (embedding.Port, error) {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("RSV_EMBEDDER")))
	if kind == "local" {
		local, err := embedding.NewLocal(log)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	return embedding.NewRemote(log), nil
}
