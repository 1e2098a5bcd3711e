// Command pdfbrain serves multi-scale retrieval over a clustered PDF/Markdown
// knowledge base and runs the batch clustering pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/request"
	chiTransport "github.com/joelhooks/pdf-brain/internal/transport/chi"
	clusteringuc "github.com/joelhooks/pdf-brain/internal/usecase/clustering"
	"github.com/joelhooks/pdf-brain/internal/version"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pdfbrain",
		Short:        "Clustering and multi-scale retrieval for a PDF/Markdown knowledge base",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newClusterCmd(), newSearchCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger

	logger.Info("Starting pdfbrain API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("summaries_driver", cfg.Summaries.Driver),
	)

	server := chiTransport.NewServer(
		a.search, a.pipeline, a.runs, a.health,
		time.Duration(cfg.Clustering.TimeoutSec)*time.Second, logger,
	)
	defer server.Close()

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func newClusterCmd() *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Run the clustering pipeline once and print the run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.Clustering.TimeoutSec)*time.Second)
			defer cancel()

			run, err := a.pipeline.Run(ctx, clusteringuc.RunOptions{Tags: tags})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), runOverview(&run))
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "cluster only chunks carrying one of these tags (repeatable)")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		limit       int
		threshold   float64
		tags        []string
		hybrid      bool
		expandChars int
		summaries   bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base and print the hits as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filters filter.Expression
			if len(tags) > 0 {
				var err error
				if filters, err = filter.AnyTag(tags); err != nil {
					return err
				}
			}
			req, err := request.New(args[0], filters, limit, threshold, hybrid, expandChars, summaries)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			hits, err := a.search.Search(cmd.Context(), &req)
			if err != nil {
				return err
			}
			out := make([]hitJSON, len(hits))
			for i := range hits {
				out[i] = toHitJSON(&hits[i])
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&limit, "limit", "n", request.DefaultLimit, "maximum number of hits")
	f.Float64Var(&threshold, "threshold", 0, "minimum similarity for vector and summary hits")
	f.StringSliceVar(&tags, "tag", nil, "restrict to chunks carrying one of these tags (repeatable)")
	f.BoolVar(&hybrid, "hybrid", false, "merge full-text matches with vector hits")
	f.IntVar(&expandChars, "expand", 0, "widen each hit with neighbouring chunks up to this many characters")
	f.BoolVar(&summaries, "summaries", false, "include cluster summaries")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pdfbrain %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}

// runOverviewJSON is the CLI view of a run: everything but vectors and assignments.
type runOverviewJSON struct {
	ID        string             `json:"id"`
	Algorithm string             `json:"algorithm"`
	K         int                `json:"k"`
	Levels    int                `json:"levels"`
	CreatedAt int64              `json:"created_at"`
	BICScores []cluster.BICScore `json:"bic_scores,omitempty"`
	Summaries []summaryJSON      `json:"summaries"`
}

type summaryJSON struct {
	Key            string   `json:"key"`
	MemberCount    int      `json:"member_count"`
	Text           string   `json:"text"`
	KeyTopics      []string `json:"key_topics,omitempty"`
	ConceptID      string   `json:"concept_id,omitempty"`
	SuggestedLabel string   `json:"suggested_label,omitempty"`
	Extractive     bool     `json:"extractive,omitempty"`
}

func runOverview(run *cluster.Run) runOverviewJSON {
	out := runOverviewJSON{
		ID:        run.ID,
		Algorithm: run.Algorithm,
		K:         run.K,
		Levels:    run.Levels,
		CreatedAt: run.CreatedAt,
		BICScores: run.BICScores,
		Summaries: make([]summaryJSON, len(run.Summaries)),
	}
	for i := range run.Summaries {
		s := &run.Summaries[i]
		out.Summaries[i] = summaryJSON{
			Key:            s.Key(),
			MemberCount:    s.MemberCount,
			Text:           s.Text,
			KeyTopics:      s.KeyTopics,
			ConceptID:      s.ConceptID,
			SuggestedLabel: s.SuggestedLabel,
			Extractive:     s.Extractive,
		}
	}
	return out
}

type hitJSON struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Page       int     `json:"page,omitempty"`
	Score      float64 `json:"score"`
	Provenance string  `json:"provenance"`
	Content    string  `json:"content"`
	Expanded   string  `json:"expanded,omitempty"`
}

func toHitJSON(h *hit.Hit) hitJSON {
	return hitJSON{
		ID:         h.ID(),
		Title:      h.Title(),
		Page:       h.Page(),
		Score:      h.Score(),
		Provenance: string(h.Provenance()),
		Content:    h.Content(),
		Expanded:   h.Expanded(),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
