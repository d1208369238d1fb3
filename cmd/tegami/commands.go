package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/tegami/internal/cli"
	"github.com/hyperjump/tegami/internal/config"
	"github.com/hyperjump/tegami/internal/indexer"
	"github.com/hyperjump/tegami/internal/models"
	"github.com/hyperjump/tegami/internal/schedule"
	"github.com/hyperjump/tegami/internal/server"
	"github.com/hyperjump/tegami/internal/storage"
)

// withComponents loads config, builds the components, runs fn and tears everything down.
func withComponents(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, cfg, c, logger)
}

func newServerCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, g, func(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()

				scheduler := schedule.NewCronScheduler(logger)
				if spec := cfg.Index.BackfillScheduleOrDefault(); spec != "" {
					if err := scheduler.AddJob(schedule.NewBackfillJob(c.Manager, logger), spec); err != nil {
						return fmt.Errorf("invalid backfill schedule %q: %w", spec, err)
					}
				}
				scheduler.Start(ctx)
				defer scheduler.Stop()

				srv := server.NewServer(c.Engine, c.Manager, c.Storage, c.Provider, cfg, logger)
				errCh := make(chan error, 1)
				go func() { errCh <- srv.Start() }()

				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sigChan)
				select {
				case err := <-errCh:
					if err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("server failed: %w", err)
					}
					return nil
				case <-sigChan:
				}

				logger.Info("Shutting down...")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				return srv.Stop(shutdownCtx)
			})
		},
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newSearchCommand(g *globalFlags) *cobra.Command {
	var (
		serverURL    string
		outputFormat string
		query        models.SearchQuery
		kwEnabled    bool
		semEnabled   bool
	)
	cmd := &cobra.Command{
		Use:   "search [flags] <query>",
		Short: "Search indexed mail",
		Long: `Search indexed mail with keyword and semantic retrieval fused by rank.

Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.
  • Use --keyword=false for semantic-only search.
  • Use --semantic=false for keyword-only search.
  • Use --fuzzy to tolerate typos. An empty result is retried with fuzzy matching automatically.`,
		Example: `  tegami search quarterly budget
  tegami search --account work --limit 20 "flight confirmation"
  tegami search --server "" --output json invoice`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query.Query = buildSearchQuery(args)
			if query.Query == "" {
				return cmd.Usage()
			}
			format, err := cli.ParseOutputFormat(outputFormat)
			if err != nil {
				return err
			}
			query.KeywordEnabled = kwEnabled
			query.SemanticEnabled = semEnabled

			if serverURL != "" {
				response, err := searchWithRetry(&query, func(q *models.SearchQuery) (*models.SearchResponse, error) {
					return searchViaHTTP(serverURL, q)
				})
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
			}

			return withComponents(cmd, g, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				response, err := searchWithRetry(&query, func(q *models.SearchQuery) (*models.SearchResponse, error) {
					return c.Engine.Search(ctx, q)
				})
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&serverURL, "server", "http://localhost:8080", "server URL (empty = open the index directly)")
	f.StringVar(&query.AccountID, "account", "", "restrict results to one account")
	f.IntVar(&query.Limit, "limit", 0, "number of results (default from config)")
	f.IntVar(&query.Offset, "offset", 0, "number of results to skip")
	f.BoolVar(&kwEnabled, "keyword", true, "enable keyword search")
	f.BoolVar(&semEnabled, "semantic", true, "enable semantic search")
	f.BoolVar(&query.FuzzyEnabled, "fuzzy", false, "enable fuzzy matching for typo tolerance")
	f.StringVar(&outputFormat, "output", "text", "output format: text, compact or json")
	return cmd
}

// searchWithRetry runs query and, when nothing matched and fuzzy matching was off,
// retries once with fuzzy matching on.
func searchWithRetry(query *models.SearchQuery, run func(*models.SearchQuery) (*models.SearchResponse, error)) (*models.SearchResponse, error) {
	response, err := run(query)
	if err != nil {
		return nil, err
	}
	if query.FuzzyEnabled || response.Total > 0 || !query.KeywordEnabled {
		return response, nil
	}
	retry := *query
	retry.FuzzyEnabled = true
	fuzzyResponse, fuzzyErr := run(&retry)
	if fuzzyErr == nil && fuzzyResponse.Total > 0 {
		fuzzyResponse.AutoFuzzy = true
		return fuzzyResponse, nil
	}
	return response, nil
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// readMessages parses one JSON message per line. Blank lines are skipped and messages
// without an id get a random one.
func readMessages(r io.Reader) ([]*models.Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var msgs []*models.Message
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(text, &msg); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		msgs = append(msgs, &msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func newImportCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl|->",
		Short: "Load messages from JSON lines into the store and index them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			msgs, err := readMessages(in)
			if err != nil {
				return fmt.Errorf("failed to read messages: %w", err)
			}
			return withComponents(cmd, g, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				for _, msg := range msgs {
					if err := c.Storage.PutMessage(ctx, msg); err != nil {
						return fmt.Errorf("failed to store message %s: %w", msg.ID, err)
					}
				}
				n, err := c.Manager.IndexBatch(ctx, msgs, c.Provider)
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d of %d messages\n", n, len(msgs))
				return err
			})
		},
	}
}

func newRemoveCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <email-id>",
		Short: "Remove one email from the search index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, g, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				if err := c.Manager.RemoveEmail(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newRemoveAccountCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-account <account-id>",
		Short: "Remove every indexed email of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, g, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				if err := c.Manager.RemoveAllForAccount(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", args[0])
				return nil
			})
		},
	}
}

func newBackfillCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Assign account ids to search records created before account tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, g, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				report, err := c.Manager.BackfillAccountIDs(ctx)
				if err != nil {
					return err
				}
				writeBackfillReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func writeBackfillReport(w io.Writer, r indexer.BackfillReport) {
	fmt.Fprintf(w, "scanned: %d\nupdated: %d\nmissing: %d\nfailed:  %d\n", r.Scanned, r.Updated, r.Missing, r.Failed)
}

func newReindexCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <account-id>",
		Short: "Re-index every stored message of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, g, func(ctx context.Context, _ *config.Config, c *Components, _ *zap.Logger) error {
				n, err := c.Manager.ReindexAccount(ctx, args[0], c.Provider)
				fmt.Fprintf(cmd.OutOrStdout(), "Re-indexed %d messages\n", n)
				return err
			})
		},
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Index             indexer.Stats `json:"index"`
	SemanticAvailable bool          `json:"semantic_available"`
	DiskUsageBytes    *int64        `json:"disk_usage_bytes,omitempty"`
	Config            *statusConfig `json:"config,omitempty"`
}

type statusConfig struct {
	EmbeddingProvider   string `json:"embedding_provider,omitempty"`
	EmbeddingDimensions int    `json:"embedding_dimensions,omitempty"`
	DatabasePath        string `json:"database_path,omitempty"`
	BleveIndexPath      string `json:"bleve_index_path,omitempty"`
}

func newStatusCommand(g *globalFlags) *cobra.Command {
	var serverURL, outputFormat string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index, storage and provider status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var status *statusResponse
			if serverURL != "" {
				res, err := statusViaHTTP(serverURL)
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				status = res
			} else {
				err := withComponents(cmd, g, func(ctx context.Context, cfg *config.Config, c *Components, _ *zap.Logger) error {
					stats, err := c.Manager.Stats(ctx)
					if err != nil {
						return err
					}
					status = &statusResponse{
						Index:             stats,
						SemanticAvailable: c.Provider.IsAvailable(),
						Config: &statusConfig{
							EmbeddingProvider:   cfg.Embedding.Provider,
							EmbeddingDimensions: cfg.Embedding.Dimensions,
							DatabasePath:        cfg.Storage.DatabasePath,
							BleveIndexPath:      cfg.Storage.BleveIndexPath,
						},
					}
					paths := append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.BleveIndexPath)
					if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
						status.DiskUsageBytes = &diskBytes
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return writeStatus(cmd.OutOrStdout(), status, outputFormat)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL (empty = open the index directly)")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "output format: text or json")
	return cmd
}

func writeStatus(w io.Writer, status *statusResponse, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "text":
		st := status.Index
		fmt.Fprintf(w, "open:               %t\n", st.Open)
		fmt.Fprintf(w, "records:            %d   # search records in the database\n", st.Records)
		fmt.Fprintf(w, "embeddings:         %d   # records carrying a vector\n", st.Embeddings)
		fmt.Fprintf(w, "vectors:            %d   # vectors loaded in memory\n", st.Vectors)
		fmt.Fprintf(w, "lexical_docs:       %d\n", st.LexicalDocs)
		fmt.Fprintf(w, "semantic_available: %t\n", status.SemanticAvailable)
		if len(st.Dimensions) > 0 {
			fmt.Fprintf(w, "dimensions:         %v\n", st.Dimensions)
		}
		if status.DiskUsageBytes != nil {
			fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + lexical index on disk\n", *status.DiskUsageBytes)
		}
		if status.Config != nil {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "# configuration")
			fmt.Fprintf(w, "embedding_provider: %s\n", status.Config.EmbeddingProvider)
			if status.Config.EmbeddingDimensions > 0 {
				fmt.Fprintf(w, "embedding_dims:     %d\n", status.Config.EmbeddingDimensions)
			}
			if status.Config.DatabasePath != "" {
				fmt.Fprintf(w, "database_path:      %s\n", status.Config.DatabasePath)
			}
			if status.Config.BleveIndexPath != "" {
				fmt.Fprintf(w, "bleve_index_path:   %s\n", status.Config.BleveIndexPath)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q; use text or json", format)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func newInitConfigCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a config file with default settings (.yaml or .toml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
