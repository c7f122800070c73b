package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/pkg/api"
	"github.com/goliatone/go-formflow/pkg/lookup"
	"github.com/goliatone/go-formflow/pkg/openapi"
	"github.com/goliatone/go-formflow/pkg/review"
	"github.com/goliatone/go-formflow/pkg/terminal"
	"github.com/goliatone/go-formflow/pkg/wizard"
)

type options struct {
	wizard   string
	config   string
	dir      string
	submit   bool
	edit     string
	output   string
	list     bool
	openapi  string
	schema   string
	resource string
	metrics  string
}

func main() {
	var opts options
	flag.StringVar(&opts.wizard, "wizard", "employee", "wizard id to run")
	flag.StringVar(&opts.config, "config", "", "YAML configuration file")
	flag.StringVar(&opts.dir, "dir", "", "directory with extra wizard definitions")
	flag.BoolVar(&opts.submit, "submit", false, "submit the payload to the backend instead of printing it")
	flag.StringVar(&opts.edit, "edit", "", "id of an existing entity to load and update")
	flag.StringVar(&opts.output, "output", "", "payload output file (stdout if empty)")
	flag.BoolVar(&opts.list, "list", false, "list the available wizards and exit")
	flag.StringVar(&opts.openapi, "openapi", "", "OpenAPI document (path or URL) to build a one-step wizard from")
	flag.StringVar(&opts.schema, "schema", "", "component schema used with -openapi")
	flag.StringVar(&opts.resource, "resource", "", "backend resource the -openapi wizard submits to")
	flag.StringVar(&opts.metrics, "metrics", "", "write backend request metrics to this file on exit")
	flag.Parse()

	cfg, err := config.Load(config.Options{Path: opts.config})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		if errors.Is(err, terminal.ErrCancelled) || errors.Is(err, terminal.ErrAborted) {
			fmt.Fprintln(os.Stderr, "Nothing was saved.")
			os.Exit(130)
		}
		logger.Error("formflow failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Log, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func newClient(cfg config.API, reg *prometheus.Registry, logger *slog.Logger) (*api.Client, error) {
	apiOpts := api.Options{
		BaseURL:      cfg.BaseURL,
		Token:        cfg.Token,
		Tenant:       cfg.Tenant,
		TenantHeader: cfg.TenantHeader,
		HTTPClient:   &http.Client{Timeout: cfg.Timeout},
		Logger:       logger,
	}
	if reg != nil {
		apiOpts.Metrics = reg
	}
	return api.New(apiOpts)
}

// writeMetrics dumps g in the Prometheus text format.
func writeMetrics(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("formflow: write metrics %s: %w", path, err)
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	dir := opts.dir
	if dir == "" {
		dir = cfg.Wizards.Dir
	}
	var extra fs.FS
	if dir != "" {
		extra = os.DirFS(dir)
	}
	store, err := formflow.Load(extra)
	if err != nil {
		return err
	}

	if opts.list {
		for _, id := range store.IDs() {
			def, _ := store.Definition(id)
			fmt.Printf("%-24s %s\n", id, def.Title)
		}
		return nil
	}

	def, err := resolveDefinition(ctx, store, opts)
	if err != nil {
		return err
	}

	sessionOpts := formflow.Options{Logger: logger}
	if opts.submit || opts.edit != "" {
		var reg *prometheus.Registry
		if opts.metrics != "" {
			reg = prometheus.NewRegistry()
			defer func() {
				if err := writeMetrics(opts.metrics, reg); err != nil {
					logger.Warn("writing metrics failed", "error", err)
				}
			}()
		}
		client, err := newClient(cfg.API, reg, logger)
		if err != nil {
			return err
		}
		sessionOpts.Client = client
		sessionOpts.Submit.OnSaved = func(r api.Record) {
			logger.Info("saved", "resource", def.Resource, "id", r["id"])
		}
	}

	var session *wizard.Session
	if opts.edit != "" {
		session, err = formflow.Edit(ctx, def, opts.edit, sessionOpts)
	} else {
		session, err = formflow.NewSession(def, sessionOpts)
	}
	if err != nil {
		return err
	}
	defer session.Close()

	renderer, err := review.New(review.WithBaseDir(cfg.Wizards.Templates))
	if err != nil {
		return err
	}
	runnerOpts := []terminal.Option{
		terminal.WithLogger(logger),
		terminal.WithReview(renderer),
	}
	if cfg.Places.Key != "" {
		places, err := lookup.NewPlacesClient(lookup.PlacesOptions{
			BaseURL: cfg.Places.BaseURL,
			Key:     cfg.Places.Key,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, terminal.WithAddressLookup(places, lookup.DefaultAddressFields,
			lookup.WithDelay(cfg.Places.Delay),
		))
	}

	payload, err := terminal.New(runnerOpts...).Run(ctx, session)
	if err != nil {
		return err
	}
	return writePayload(opts.output, payload)
}

func resolveDefinition(ctx context.Context, store *wizard.Store, opts options) (*wizard.Definition, error) {
	if opts.openapi == "" {
		def, ok := store.Definition(opts.wizard)
		if !ok {
			return nil, fmt.Errorf("unknown wizard %q (available: %s)", opts.wizard, strings.Join(store.IDs(), ", "))
		}
		return def, nil
	}
	if opts.schema == "" {
		return nil, errors.New("-schema is required with -openapi")
	}
	raw, err := openapi.ReadDocument(ctx, opts.openapi, openapi.SourceOptions{HTTPClient: http.DefaultClient})
	if err != nil {
		return nil, err
	}
	step, err := openapi.Step(ctx, raw, opts.schema, "", openapi.Options{})
	if err != nil {
		return nil, err
	}
	return &wizard.Definition{
		ID:       strings.ToLower(opts.schema),
		Title:    opts.schema,
		Resource: opts.resource,
		Steps:    []wizard.StepDefinition{step},
	}, nil
}

func writePayload(path string, payload map[string]any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	fmt.Printf("Payload written to %s\n", path)
	return nil
}
