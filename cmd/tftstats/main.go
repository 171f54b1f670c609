// Command tftstats ingests TFT matches, aggregates them into meta statistics
// and serves the results over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/tft-meta-stats/internal/config"
	"github.com/Sternrassler/tft-meta-stats/internal/server"
	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
	"github.com/Sternrassler/tft-meta-stats/pkg/refresh"
	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
	"github.com/Sternrassler/tft-meta-stats/pkg/store"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to run app")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "tftstats",
		Usage:       "TFT meta statistics",
		Description: "Ingests ranked TFT matches from the Riot API under its rate limits, aggregates compositions, units, items and traits, and serves the results.",
		Version:     version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before the environment",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			refreshCommand(),
			aggregateCommand(),
			envCommand(),
		},
	}
}

// withDeps parses configuration, sets up logging and opens the shared components.
func withDeps(c *cli.Context, fn func(ctx context.Context, d *deps) error) error {
	cfg, err := config.Parse(c.String("env-file"))
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	return fn(ctx, d)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the HTTP API and refresh on a schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-refresh",
				Usage: "serve stored statistics without scheduled refreshes",
			},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *deps) error {
				g, ctx := errgroup.WithContext(ctx)
				if !c.Bool("no-refresh") {
					if d.cfg.HasAPIKey() {
						job, err := d.newJob()
						if err != nil {
							return err
						}
						g.Go(func() error {
							refresh.NewScheduler(job, d.cfg.RefreshInterval).Run(ctx)
							return nil
						})
					} else {
						log.Warn().Msg("RIOT_API_KEY is not set, scheduled refreshes are disabled")
					}
				}
				g.Go(func() error { return serve(ctx, d) })
				return g.Wait()
			})
		},
	}
}

func serve(ctx context.Context, d *deps) error {
	api := server.New(d.store, server.Config{Rate: d.cfg.APIRate, Burst: d.cfg.APIBurst})
	api.Start(ctx)

	srv := &http.Server{
		Addr:              d.cfg.Address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", d.cfg.Address).Str("store", d.cfg.StoreDriver).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "run one ingestion and aggregation pass and print its report",
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *deps) error {
				job, err := d.newJob()
				if err != nil {
					return err
				}
				rep, err := job.Run(ctx)
				if encErr := json.NewEncoder(c.App.Writer).Encode(rep); encErr != nil && err == nil {
					err = encErr
				}
				return err
			})
		},
	}
}

func aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "rebuild statistics from stored matches without calling the API",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "region",
				Usage: "partitions to rebuild (default: every partition and all)",
			},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *deps) error {
				regions := c.StringSlice("region")
				if len(regions) == 0 {
					regions = append(riot.PartitionKeys(), store.AllPartitions)
				}
				job := d.newReaggregator()
				for _, region := range regions {
					res, err := job.Reaggregate(ctx, region)
					if err != nil {
						return err
					}
					log.Info().
						Str("partition", res.Partition).
						Int("games", res.Summary.TotalGames).
						Int("compositions", len(res.Compositions)).
						Msg("Statistics rebuilt")
				}
				return nil
			})
		},
	}
}

func envCommand() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "list the supported environment variables",
		Action: func(*cli.Context) error {
			return config.Usage()
		},
	}
}
