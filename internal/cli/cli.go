// Package cli is the operational command-line surface: thin wiring
// over the store, the embedder, and the server.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/reservoir/internal/config"
	"github.com/example/reservoir/internal/embedding"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/platform/logger"
)

// Deps is everything a subcommand needs. Built once in cmd/reservoir
// and threaded into every command's RunE closure.
type Deps struct {
	Log   *logger.Logger
	Store graphstore.Store
	Embed embedding.Port

	// StartServer runs the HTTP server in the foreground; supplied by
	// cmd/reservoir so this package doesn't depend on internal/httpapi
	// (avoids a dependency cycle with the config/embedding selection
	// that happens before the server is built).
	StartServer func(ctx context.Context, ollamaMode bool) error
}

// NewRoot builds the root cobra command with every subcommand.
func NewRoot(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "reservoir",
		Short: "A transparent, memory-augmenting chat-completions proxy",
	}

	root.AddCommand(newStartCmd(deps))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newExportCmd(deps))
	root.AddCommand(newImportCmd(deps))
	root.AddCommand(newViewCmd(deps))
	root.AddCommand(newSearchCmd(deps))
	root.AddCommand(newIngestCmd(deps))
	root.AddCommand(newReplayCmd(deps))
	return root
}

func newStartCmd(deps Deps) *cobra.Command {
	var ollama bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve the chat-completions proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.StartServer(cmd.Context(), ollama)
		},
	}
	cmd.Flags().BoolVar(&ollama, "ollama", false, "serve on port 11434 in ollama-mimic mode")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var set, get string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or write reservoir.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case set != "":
				kv := strings.SplitN(set, "=", 2)
				if len(kv) != 2 {
					return fmt.Errorf("--set expects key=value")
				}
				return config.Set(kv[0], kv[1])
			case get != "":
				v, err := config.Get(get)
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			default:
				return fmt.Errorf("specify --set k=v or --get k")
			}
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "key=value to write")
	cmd.Flags().StringVar(&get, "get", "", "key to read")
	return cmd
}

func newExportCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print all persisted nodes as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := deps.Store.AllMessages(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(nodes)
		},
	}
}

func newImportCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load nodes from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			var nodes []graphstore.MessageNode
			if err := json.NewDecoder(f).Decode(&nodes); err != nil {
				return err
			}
			// Each node is an independent write; saves run with bounded
			// concurrency.
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(8)
			for _, n := range nodes {
				n := n
				g.Go(func() error {
					return deps.Store.SaveMessageNode(gctx, n)
				})
			}
			return g.Wait()
		},
	}
}

func newViewCmd(deps Deps) *cobra.Command {
	var partition, instance string
	cmd := &cobra.Command{
		Use:   "view <N>",
		Short: "Print the last N messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil {
				return err
			}
			if instance == "" {
				instance = partition
			}
			nodes, err := deps.Store.GetLastMessages(cmd.Context(), partition, instance, n)
			if err != nil {
				return err
			}
			for _, node := range nodes {
				fmt.Printf("[%s] %s\n", node.Role, node.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "default", "partition")
	cmd.Flags().StringVarP(&instance, "instance", "i", "", "instance (defaults to partition)")
	return cmd
}

func newSearchCmd(deps Deps) *cobra.Command {
	var partition, instance string
	var semantic, link, deduplicate bool
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search persisted messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := args[0]
			if instance == "" {
				instance = partition
			}
			var nodes []graphstore.MessageNode
			var err error
			if semantic {
				vec, embedErr := deps.Embed.Embed(cmd.Context(), term)
				if embedErr != nil {
					return embedErr
				}
				nodes, err = deps.Store.FindSimilar(cmd.Context(), vec, partition, instance, "user", 20)
			} else {
				nodes, err = deps.Store.GetLastMessages(cmd.Context(), partition, instance, 1000)
				needle := strings.ToLower(term)
				matched := make([]graphstore.MessageNode, 0, len(nodes))
				for _, n := range nodes {
					if strings.Contains(strings.ToLower(n.Content), needle) {
						matched = append(matched, n)
					}
				}
				nodes = matched
			}
			if err != nil {
				return err
			}
			if link {
				expanded, linkErr := deps.Store.FindConnectionsBetween(cmd.Context(), nodes)
				if linkErr != nil {
					return linkErr
				}
				nodes = append(nodes, expanded...)
			}
			if deduplicate {
				nodes = dedupeByContent(nodes)
			}
			for _, node := range nodes {
				fmt.Printf("[%s] %s\n", node.Role, node.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "default", "partition")
	cmd.Flags().StringVarP(&instance, "instance", "i", "", "instance (defaults to partition)")
	cmd.Flags().BoolVar(&semantic, "semantic", false, "use vector similarity instead of keyword matching over recent messages")
	cmd.Flags().BoolVar(&link, "link", false, "expand results via paired-response edges")
	cmd.Flags().BoolVar(&deduplicate, "deduplicate", false, "collapse entries with identical content")
	return cmd
}

func dedupeByContent(nodes []graphstore.MessageNode) []graphstore.MessageNode {
	seen := map[string]bool{}
	out := make([]graphstore.MessageNode, 0, len(nodes))
	for _, n := range nodes {
		key := strings.TrimSpace(strings.ToLower(n.Content))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

func newIngestCmd(deps Deps) *cobra.Command {
	var partition, instance, role string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Read one message from stdin and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if instance == "" {
				instance = partition
			}
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			var content strings.Builder
			for scanner.Scan() {
				content.WriteString(scanner.Text())
				content.WriteString("\n")
			}
			vec, err := deps.Embed.Embed(cmd.Context(), content.String())
			if err != nil {
				return err
			}
			return deps.Store.SaveMessageNode(cmd.Context(), graphstore.MessageNode{
				TraceID:   fmt.Sprintf("ingest-%d", graphstore.NowMillis()),
				Partition: partition,
				Instance:  instance,
				Role:      role,
				Content:   strings.TrimSpace(content.String()),
				Embedding: vec,
				Timestamp: graphstore.NowMillis(),
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "default", "partition")
	cmd.Flags().StringVarP(&instance, "instance", "i", "", "instance (defaults to partition)")
	cmd.Flags().StringVar(&role, "role", "user", "role to persist the ingested message as")
	return cmd
}

func newReplayCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [model]",
		Short: "Re-embed historic nodes with the configured embedder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The index name must match the embedder's vector length;
			// a mismatch is refused rather than silently written to
			// the wrong index.
			nodes, err := deps.Store.AllMessages(cmd.Context())
			if err != nil {
				return err
			}
			// Re-embedding is independent per node; a dimension
			// mismatch aborts the whole replay, a transient embed
			// failure only skips that node.
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(8)
			for _, n := range nodes {
				n := n
				g.Go(func() error {
					vec, err := deps.Embed.Embed(gctx, n.Content)
					if err != nil {
						deps.Log.Warn("replay: embed failed, skipping node", "trace_id", n.TraceID, "error", err.Error())
						return nil
					}
					if len(vec) != deps.Embed.Dims() {
						return fmt.Errorf("replay: embedder produced %d dims, expected %d for index %s", len(vec), deps.Embed.Dims(), deps.Embed.IndexName())
					}
					n.Embedding = vec
					return deps.Store.SaveMessageNode(gctx, n)
				})
			}
			return g.Wait()
		},
	}
}
