package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/livetemplate/awardwizard/internal/config"
	"github.com/livetemplate/awardwizard/internal/logging"
	"github.com/livetemplate/awardwizard/internal/remote"
	"github.com/livetemplate/awardwizard/internal/server"
	"github.com/livetemplate/awardwizard/internal/session"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	host      string
	port      int
	watch     bool
	templates string
}

func serveCmd(g *globalFlags) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the award site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			// CLI flags override config
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = f.host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = f.port
			}
			if f.templates != "" {
				cfg.Server.TemplatesDir = f.templates
			}
			if f.watch {
				cfg.Server.Watch = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(cmd.Context(), cfg, ln, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&f.host, "host", "", "Listen host")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "Listen port")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Reload templates when they change")
	cmd.Flags().StringVar(&f.templates, "templates", "", "Directory of template overrides")
	return cmd
}

// serve runs the site on ln until ctx is done, then drains in-flight
// requests. ln is closed on return.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener, out io.Writer) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		ln.Close()
		return err
	}
	defer func() { _ = logger.Sync() }()

	sessions, err := session.Open(ctx, cfg.Session, logger)
	if err != nil {
		ln.Close()
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()

	api, err := remote.New(remote.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.GetTimeout(),
		Retry: remote.RetryConfig{
			MaxRetries: cfg.API.Retry.GetMaxRetries(),
			BaseDelay:  cfg.API.Retry.GetBaseDelay(),
			MaxDelay:   cfg.API.Retry.GetMaxDelay(),
		},
		Circuit: remote.CircuitBreakerConfig{
			FailureThreshold: cfg.API.Circuit.GetFailureThreshold(),
			SuccessThreshold: 2,
			Timeout:          cfg.API.Circuit.GetTimeout(),
			FailureWindow:    time.Minute,
		},
		NominationsTTL: cfg.API.GetNominationsCacheTTL(),
		Logger:         logger,
	})
	if err != nil {
		ln.Close()
		return fmt.Errorf("api client: %w", err)
	}
	defer api.Close()

	srv, err := server.New(server.Options{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		ln.Close()
		return err
	}
	defer srv.Close()

	if cfg.Server.Watch {
		if err := srv.EnableWatch(); err != nil {
			ln.Close()
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	httpSrv := &http.Server{
		Handler:           srv.Handler(gctx),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	fmt.Fprintf(out, "Award site running at http://%s\n", ln.Addr())
	logger.Info("server started",
		zap.String("addr", ln.Addr().String()),
		zap.String("api", cfg.API.BaseURL),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("watch", cfg.Server.Watch),
	)

	g.Go(func() error {
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ttl := cfg.Session.GetTTL()
		return session.RunSweeper(gctx, sessions, ttl, sweepInterval(ttl), logger.Named("sweeper"))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}
