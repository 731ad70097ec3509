// chatrag: document Q&A over a dual-store RAG backend.
//
// Documents live in a relational text store (source of truth) and a vector
// store (derived, repairable). The CLI covers ingestion, search, chat,
// verification and reconciliation of the two stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	ollamaemb "github.com/vsedlak/chatrag/builtin/embedding/ollama"
	openaiemb "github.com/vsedlak/chatrag/builtin/embedding/openai"
	textsqlite "github.com/vsedlak/chatrag/builtin/textstore/sqlite"
	"github.com/vsedlak/chatrag/builtin/vectorstore/sqlitevec"
	"github.com/vsedlak/chatrag/internal/backup"
	"github.com/vsedlak/chatrag/internal/chat"
	"github.com/vsedlak/chatrag/internal/chunker"
	"github.com/vsedlak/chatrag/internal/config"
	"github.com/vsedlak/chatrag/internal/search"
	"github.com/vsedlak/chatrag/internal/session"
	syncpkg "github.com/vsedlak/chatrag/internal/sync"
	"github.com/vsedlak/chatrag/internal/watch"
	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

var version = "dev"

var (
	flagRoot      string
	flagLogLevel  string
	flagLogFormat string
)

func main() {
	// Missing .env is fine, the environment may carry the key directly.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "chatrag",
		Short:   "Document Q&A with synchronized text and vector stores",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&flagRoot, "root", "r", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (text, json)")

	rootCmd.AddCommand(
		initCmd(),
		ingestCmd(),
		listCmd(),
		deleteCmd(),
		searchCmd(),
		chatCmd(),
		sessionsCmd(),
		verifyCmd(),
		resyncCmd(),
		watchCmd(),
		backupCmd(),
		restoreCmd(),
		statusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the default slog logger.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	levelName := cfg.Logging.Level
	if flagLogLevel != "" {
		levelName = flagLogLevel
	}
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	format := cfg.Logging.Format
	if flagLogFormat != "" {
		format = flagLogFormat
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// app bundles the wired components behind one open/close pair.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	text     provider.TextStore
	vectors  provider.VectorStore
	embedder provider.EmbeddingProvider

	coordinator *syncpkg.Coordinator
	verifier    *syncpkg.Verifier
	reconciler  *syncpkg.Reconciler
	searcher    *search.Service
	sessions    *session.Manager
	backups     *backup.Manager
}

// newRegistry registers the builtin providers.
func newRegistry(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()

	registry.RegisterTextStore("sqlite", func() (provider.TextStore, error) {
		return textsqlite.New(), nil
	})
	registry.RegisterVectorStore("sqlitevec", func() (provider.VectorStore, error) {
		return sqlitevec.New(cfg.VectorStore.Metric), nil
	})
	registry.RegisterEmbedding("openai", func(c provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiemb.New(openaiemb.Config{
			Model:     c.Model,
			APIKey:    c.APIKey,
			BaseURL:   c.Endpoint,
			BatchSize: c.BatchSize,
		}), nil
	})
	registry.RegisterEmbedding("ollama", func(c provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaemb.New(ollamaemb.Config{
			Model:     c.Model,
			Endpoint:  c.Endpoint,
			BatchSize: c.BatchSize,
		}), nil
	})
	registry.RegisterChunker("overlap", func(c provider.ChunkingConfig) (provider.Chunker, error) {
		return chunker.New(c), nil
	})

	return registry
}

// resolvePath resolves a store path against the project config directory.
func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(config.ConfigDir(root), path)
}

// openApp loads configuration and wires every component.
func openApp() (*app, error) {
	cfg, warnings, err := config.Load(flagRoot)
	if err != nil {
		return nil, err
	}

	logger := setupLogging(cfg)
	for _, warning := range warnings {
		logger.Warn(warning)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config error", "error", e)
		}
		return nil, fmt.Errorf("%w: %d error(s)", types.ErrInvalidConfig, len(errs))
	}

	textPath := resolvePath(flagRoot, cfg.TextStore.Path)
	vectorPath := resolvePath(flagRoot, cfg.VectorStore.Path)

	backups, err := backup.NewManager(resolvePath(flagRoot, cfg.Backup.Dir), textPath, vectorPath, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Backup.RestoreOnStart {
		if _, err := backups.RestoreAll(); err != nil {
			return nil, fmt.Errorf("restore on start failed: %w", err)
		}
	}

	registry := newRegistry(cfg)

	text, err := registry.CreateTextStore(cfg.TextStore.Provider)
	if err != nil {
		return nil, err
	}
	if err := text.Init(textPath); err != nil {
		return nil, fmt.Errorf("failed to open text store: %w", err)
	}

	vectors, err := registry.CreateVectorStore(cfg.VectorStore.Provider)
	if err != nil {
		text.Close()
		return nil, err
	}
	if err := vectors.Init(vectorPath, cfg.Embedding.Dimension); err != nil {
		text.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	embedder, err := registry.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Endpoint:  cfg.Embedding.Endpoint,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		text.Close()
		vectors.Close()
		return nil, err
	}

	split, err := registry.CreateChunker("overlap", provider.ChunkingConfig{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		MinChunkSize: cfg.Chunking.MinChunkSize,
	})
	if err != nil {
		text.Close()
		vectors.Close()
		return nil, err
	}

	sessions, err := session.NewManager(resolvePath(flagRoot, cfg.Sessions.Dir), text)
	if err != nil {
		text.Close()
		vectors.Close()
		return nil, err
	}

	verifier := syncpkg.NewVerifier(text, vectors, logger)
	assembler := syncpkg.NewAssembler(text, cfg.VectorStore.Metric, logger)

	a := &app{
		cfg:         cfg,
		logger:      logger,
		text:        text,
		vectors:     vectors,
		embedder:    embedder,
		coordinator: syncpkg.NewCoordinator(text, vectors, embedder, split, logger),
		verifier:    verifier,
		reconciler:  syncpkg.NewReconciler(text, vectors, embedder, verifier, logger),
		searcher: search.New(embedder, vectors, assembler, search.Options{
			TopK:      cfg.Search.TopK,
			Threshold: cfg.Search.SimilarityThreshold,
		}, logger),
		sessions: sessions,
		backups:  backups,
	}
	return a, nil
}

// close shuts everything down, backing up afterwards when configured.
func (a *app) close() {
	a.embedder.Close()
	a.vectors.Close()
	a.text.Close()

	if a.cfg.Backup.OnShutdown {
		if _, err := a.backups.BackupAll(); err != nil {
			a.logger.Warn("shutdown backup failed", "error", err)
		}
	}
}

func (a *app) chatService() *chat.Service {
	return chat.New(chat.Config{
		Model:       a.cfg.Chat.Model,
		APIKey:      a.cfg.Embedding.APIKey,
		BaseURL:     a.cfg.Embedding.Endpoint,
		Temperature: a.cfg.Chat.Temperature,
		MaxTokens:   a.cfg.Chat.MaxTokens,
	}, a.searcher, a.logger)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigPath(flagRoot)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists: %s", path)
			}
			if err := config.Save(flagRoot, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("Created %s\n", path)
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into both stores",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}

				doc, err := a.coordinator.IngestDocument(ctx, filepath.Base(path), string(content))
				var partial *types.PartialWriteError
				switch {
				case err == nil:
					fmt.Printf("Ingested %s: %s (%d chunks)\n", path, doc.ID, doc.ChunkCount)
				case errors.As(err, &partial):
					fmt.Printf("Ingested %s: %s (%d chunks, %d vectors missing; run resync)\n",
						path, doc.ID, doc.ChunkCount, len(partial.FailedIndexes))
				default:
					return fmt.Errorf("failed to ingest %s: %w", path, err)
				}
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			docs, err := a.text.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents.")
				return nil
			}
			for _, doc := range docs {
				fmt.Printf("%s  %-30s  %d chunks  %s\n",
					doc.ID, doc.Filename, doc.ChunkCount, doc.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document from both stores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.coordinator.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var topK int
	var threshold float64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for relevant chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			opts := &search.Options{TopK: topK, Threshold: threshold}
			results, err := a.searcher.Search(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No results.")
				return nil
			}
			for i, r := range results {
				if r.Unavailable {
					fmt.Printf("%d. [score %.3f] (doc %s, chunk %d) %s\n",
						i+1, r.Score, r.DocumentID, r.ChunkIndex, r.Text)
					continue
				}
				fmt.Printf("%d. [score %.3f] %s\n", i+1, r.Score, firstLine(r.Text))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default from config)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "minimum similarity score (default from config)")
	return cmd
}

func chatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat <question>",
		Short: "Ask a question over the ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Chat.Timeout)
			defer cancel()

			var history []types.Message
			if sessionID == "" {
				sessionID, err = a.sessions.Create("")
				if err != nil {
					return err
				}
				fmt.Printf("Session: %s\n", sessionID)
			} else {
				history, err = a.sessions.Messages(sessionID)
				if err != nil {
					return err
				}
			}

			question := args[0]
			reply, err := a.chatService().Ask(ctx, history, question)
			if err != nil {
				return err
			}

			messageID, err := a.sessions.LogMessage(sessionID, types.Message{Role: "user", Content: question}, reply.Model)
			if err != nil {
				return err
			}
			if err := a.sessions.LogChunks(sessionID, messageID, reply.Sources); err != nil {
				return err
			}
			if _, err := a.sessions.LogMessage(sessionID, reply.Message, reply.Model); err != nil {
				return err
			}

			fmt.Println(reply.Message.Content)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			sessions, err := a.sessions.List()
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%s  %-30s  %d messages  %s\n",
					s.SessionID, s.Title, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.sessions.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted session %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that both stores agree",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.verifier.Verify(cmd.Context())
			if err != nil {
				return err
			}
			printReport(report)
			if !report.InSync {
				a.close()
				os.Exit(1)
			}
			return nil
		},
	}
}

func resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Rebuild missing vectors from stored text",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.reconciler.Resync(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Documents processed: %d\n", result.DocumentsProcessed)
			fmt.Printf("Chunks processed:    %d\n", result.ChunksProcessed)
			fmt.Printf("Vectors inserted:    %d\n", result.VectorsInserted)
			if len(result.Errors) > 0 {
				fmt.Printf("Errors (%d):\n", len(result.Errors))
				for _, e := range result.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}
			if result.Success {
				fmt.Println("Resync succeeded.")
			} else {
				fmt.Println("Resync finished with errors.")
				a.close()
				os.Exit(1)
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var inbox string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch an inbox directory and ingest new files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			watcher, err := watch.New(watch.Config{
				InboxDir:    inbox,
				Coordinator: a.coordinator,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return watcher.Watch(ctx)
		},
	}

	cmd.Flags().StringVarP(&inbox, "inbox", "i", "inbox", "directory to watch for new documents")
	return cmd
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up both store files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}

			// Stores must be closed before the files are copied. Skip the
			// automatic shutdown backup, this run is the backup.
			a.embedder.Close()
			a.vectors.Close()
			a.text.Close()

			infos, err := a.backups.BackupAll()
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("Backed up %s store: %s (%d bytes)\n", info.Store, info.BackupPath, info.SizeBytes)
			}
			if len(infos) == 0 {
				fmt.Println("Nothing to back up.")
			}
			return nil
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore both stores from their latest backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(flagRoot)
			if err != nil {
				return err
			}
			logger := setupLogging(cfg)

			// Restore runs against closed stores, so no app is opened.
			textPath := resolvePath(flagRoot, cfg.TextStore.Path)
			vectorPath := resolvePath(flagRoot, cfg.VectorStore.Path)
			backups, err := backup.NewManager(resolvePath(flagRoot, cfg.Backup.Dir), textPath, vectorPath, logger)
			if err != nil {
				return err
			}

			infos, err := backups.RestoreAll()
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("Restored %s store from %s\n", info.Store, info.BackupPath)
			}
			if len(infos) == 0 {
				fmt.Println("No backups to restore.")
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and store health",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			fmt.Printf("Embedding:    %s / %s (%d dims)\n",
				a.cfg.Embedding.Provider, a.cfg.Embedding.Model, a.cfg.Embedding.Dimension)
			fmt.Printf("Vector store: %s (metric %s)\n", a.vectors.Name(), a.cfg.VectorStore.Metric)
			fmt.Printf("Text store:   %s\n", a.text.Name())

			if err := a.text.Ping(ctx); err != nil {
				fmt.Printf("Text store:   UNREACHABLE (%v)\n", err)
			} else {
				docs, chunks, err := a.text.Counts(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Documents:    %d\n", docs)
				fmt.Printf("Chunks:       %d\n", chunks)
			}

			if err := a.vectors.Ping(ctx); err != nil {
				fmt.Printf("Vector store: UNREACHABLE (%v)\n", err)
			} else {
				count, err := a.vectors.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Vectors:      %d\n", count)
			}

			if checker, ok := a.embedder.(interface {
				Available(ctx context.Context) error
			}); ok {
				if err := checker.Available(ctx); err != nil {
					fmt.Printf("Embedding:    UNAVAILABLE (%v)\n", err)
				} else {
					fmt.Println("Embedding:    available")
				}
			}

			return nil
		},
	}
}

func printReport(report *types.VerificationReport) {
	connected := func(ok bool) string {
		if ok {
			return "connected"
		}
		return "UNREACHABLE"
	}
	fmt.Printf("Text store:   %s\n", connected(report.TextStoreConnected))
	fmt.Printf("Vector store: %s\n", connected(report.VectorStoreConnected))
	for key, detail := range report.Details {
		fmt.Printf("  %s: %s\n", key, detail)
	}
	if !report.TextStoreConnected || !report.VectorStoreConnected {
		return
	}

	fmt.Printf("Documents:    %d\n", report.DocumentCount)
	fmt.Printf("Chunks:       %d\n", report.ChunkCount)
	fmt.Printf("Vectors:      %d\n", report.VectorCount)

	if report.InSync {
		fmt.Println("Stores are in sync.")
		return
	}

	if n := len(report.MissingInVectorStore); n > 0 {
		fmt.Printf("Missing in vector store: %d chunk(s)\n", n)
		for _, id := range report.MissingInVectorStore {
			fmt.Printf("  - %s\n", id)
		}
		fmt.Println("Run 'chatrag resync' to repair.")
	}
	if n := len(report.OrphanedInVectorStore); n > 0 {
		fmt.Printf("Orphaned in vector store: %d vector(s)\n", n)
		for _, id := range report.OrphanedInVectorStore {
			fmt.Printf("  - %d\n", id)
		}
		fmt.Println("Orphans are reported only, nothing was deleted.")
	}
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 100 {
		text = text[:100] + "..."
	}
	return text
}
