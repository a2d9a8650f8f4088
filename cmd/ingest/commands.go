package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-tutor/engine/app"
	"github.com/WessleyAI/wessley-tutor/engine/chunk"
	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/ingest"
	"github.com/WessleyAI/wessley-tutor/engine/source"
	"github.com/WessleyAI/wessley-tutor/pkg/natsutil"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

// openApp connects the stores and hands the App to run, closing it after.
func openApp(cmd *cobra.Command, g *globals, run func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := app.Open(ctx, g.cfg, g.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			g.logger.Warn("close connections", "err", err)
		}
	}()
	return run(ctx, a)
}

func newRegisterCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "register <book.json>",
		Short: "Add or update a book in the library",
		Long: `Register a book from a JSON description:

  {"id": "geo7", "title": "Geography", "grade": "7", "subject": "Social Studies",
   "file_path": "geo7.pdf", "outline": [{"title": "Unit 1", "page_start": 1, "page_end": 20}]}

file_path is resolved against ingest.data_dir; s3://bucket/key paths are
read from object storage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			return openApp(cmd, g, func(ctx context.Context, a *app.App) error {
				if err := a.Library.SaveDocument(ctx, doc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%d units)\n", doc.ID, len(doc.Outline))
				return nil
			})
		},
	}
}

// readDocument loads a book description and checks its id and outline.
func readDocument(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Document{}, &domain.ParseError{What: "book description", Input: path, Err: err}
	}
	if err := domain.ValidateDocumentID(doc.ID); err != nil {
		return domain.Document{}, err
	}
	if err := domain.ValidateOutline(doc.Outline); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func newBooksCmd(g *globals) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List registered books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return openApp(cmd, g, func(ctx context.Context, a *app.App) error {
				docs, err := a.Library.ListDocuments(ctx, offset, limit)
				if err != nil {
					return err
				}
				return printBooks(cmd, docs)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many books")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum books to list")
	return cmd
}

func printBooks(cmd *cobra.Command, docs []domain.Document) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tGRADE\tSUBJECT\tUNITS\tINDEXED\tPOINTS")
	for _, d := range docs {
		indexed := "-"
		if d.Indexed {
			indexed = d.IndexedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n", d.ID, d.Title, d.Grade, d.Subject, len(d.Outline), indexed, d.Points)
	}
	return tw.Flush()
}

func newBookCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "book <id>",
		Short: "Index one book now",
		Long: `Load, chunk, embed and upsert one registered book, then print the run
report. With ingest.clear_before_write the book's existing points are
replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return openApp(cmd, g, func(ctx context.Context, a *app.App) error {
				p, err := a.Pipeline()
				if err != nil {
					return err
				}
				rep, err := p.Ingest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			})
		},
	}
}

func newEnqueueCmd(g *globals) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "enqueue <id>...",
		Short: "Queue books for the ingestion workers",
		Long: `Publish one ingestion job per book on nats.ingest_subject. With --wait
each job is sent as a request and the worker's report is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			nc, err := nats.Connect(g.cfg.NATS.URL, nats.Name("tutor-ingest-cli"))
			if err != nil {
				return fmt.Errorf("nats %s: %w", g.cfg.NATS.URL, err)
			}
			defer nc.Close()
			return enqueue(ctx, cmd, nc, g.cfg.NATS.IngestSubject, args, wait)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for each job's report")
	return cmd
}

func enqueue(ctx context.Context, cmd *cobra.Command, nc *nats.Conn, subject string, ids []string, wait bool) error {
	var errs []error
	for _, id := range ids {
		if err := domain.ValidateDocumentID(id); err != nil {
			errs = append(errs, err)
			continue
		}
		job := ingest.Job{DocID: id}
		if !wait {
			if err := natsutil.Publish(ctx, nc, subject, job, nil); err != nil {
				return fmt.Errorf("publish %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, ingest.JobTimeout)
		res, err := natsutil.Request[ingest.Job, ingest.JobResult](reqCtx, nc, subject, job)
		cancel()
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		case res.Error != "":
			errs = append(errs, fmt.Errorf("%s: %s", id, res.Error))
		default:
			if err := printJSON(cmd, res.Report); err != nil {
				return err
			}
		}
	}
	return errors.Join(errs...)
}

func newWorkerCmd(g *globals) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume ingestion jobs from NATS",
		Long: `Subscribe to nats.ingest_subject in the "` + ingest.QueueGroup + `" queue group
and index each requested book. Failed jobs are retried, then dead-lettered
to the subject's .dlq suffix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return openApp(cmd, g, func(ctx context.Context, a *app.App) error {
				return runWorker(ctx, a, metricsAddr)
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9091", "listen address for /metrics (empty disables)")
	return cmd
}

func runWorker(ctx context.Context, a *app.App, metricsAddr string) error {
	if err := a.ConnectNATS(ctx); err != nil {
		return err
	}
	p, err := a.Pipeline()
	if err != nil {
		return err
	}
	subject := a.Config.NATS.IngestSubject
	sub, err := ingest.StartConsumer(a.NATS, p, ingest.ConsumerOpts{
		Subject: subject,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	var srv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.Metrics.Registry().Handler())
		srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("metrics server", "err", err)
			}
		}()
	}

	a.Logger.Info("ingest worker started", "subject", subject, "dlq", ingest.DLQSubject(subject), "metrics", metricsAddr)
	<-ctx.Done()
	a.Logger.Info("shutting down")

	if err := sub.Drain(); err != nil {
		a.Logger.Warn("drain subscription", "err", err)
	}
	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
	return nil
}

func newChunkCmd(g *globals) *cobra.Command {
	var docPath, strategy string
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Show how a text file would be chunked",
		Long: `Chunk a local text file with the configured chunker and print one JSON
chunk per line. --doc supplies the book description, including any outline.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := domain.Document{ID: strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))}
			if docPath != "" {
				d, err := readDocument(docPath)
				if err != nil {
					return err
				}
				doc = d
			}
			doc.FilePath = args[0]

			cc := g.cfg.ChunkConfig()
			if strategy != "" {
				s, err := chunk.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				cc.Strategy = s
			}
			return chunkFile(cmd, g, doc, cc)
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "book description JSON")
	cmd.Flags().StringVar(&strategy, "strategy", "", "override chunking.strategy (auto, heading, outline)")
	return cmd
}

func chunkFile(cmd *cobra.Command, g *globals, doc domain.Document, cc chunk.Config) error {
	text, err := source.FileLoader{}.Load(cmd.Context(), doc)
	if err != nil {
		return err
	}
	c, err := chunk.New(cc, g.logger)
	if err != nil {
		return err
	}
	chunks, err := c.Chunk(doc, text)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, ch := range chunks {
		if err := enc.Encode(ch); err != nil {
			return err
		}
	}
	g.logger.Info("chunked", "doc_id", doc.ID, "strategy", string(cc.Strategy), "chunks", len(chunks))
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
