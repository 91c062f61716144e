package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wrale/cbl-authd/cmd/cbl-authd/handlers/status"
	"github.com/wrale/cbl-authd/internal/deviceflow"
	"github.com/wrale/cbl-authd/internal/oauth"
)

const shutdownTimeout = 10 * time.Second

func newRunCommand() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Link the device and keep its access token refreshed",
		Long: "Run obtains a code pair, prints it for the user and keeps the access token " +
			"fresh until interrupted. With --resume it only continues from a stored refresh token.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)
			return runAgent(cmd.Context(), cfg, resume, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "Only start from a stored refresh token")
	return cmd
}

// runAgent runs the state machine and the status server until ctx ends.
func runAgent(ctx context.Context, cfg Config, resume bool, out io.Writer, logger *slog.Logger) error {
	authCfg, err := cfg.authorizationConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := cfg.openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("closing credential store", "error", err)
		}
	}()

	transport := oauth.NewHTTPTransport(oauth.WithUserAgent("cbl-authd/" + Version))
	machine, err := deviceflow.New(authCfg, transport, store, deviceflow.WithLogger(logger))
	if err != nil {
		return err
	}
	defer machine.Stop()

	tracker := status.NewTracker(machine)
	if err := machine.AddObserver(tracker); err != nil {
		return err
	}

	var onLinked func()
	if cfg.UserProfile {
		onLinked = func() { reportProfile(ctx, machine, cfg.ProfileURL, logger) }
	}
	if err := machine.AddObserver(newConsoleObserver(out, onLinked)); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.StatusAddr != "" {
		srv := newServer(machine, tracker, logger)
		httpServer := &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           srv.router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("status server listening", "addr", cfg.StatusAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutting down status server", "error", err)
				return httpServer.Close()
			}
			return nil
		})
	}

	machine.Start(resume)
	if resume && !machine.Running() {
		logger.Warn("no stored refresh token to resume from; run without --resume to link the device")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		machine.Stop()
		return nil
	})

	return g.Wait()
}

// reportProfile logs who the device was linked to. A rejected token is
// passed back to the machine.
func reportProfile(ctx context.Context, machine *deviceflow.StateMachine, profileURL string, logger *slog.Logger) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token := machine.AuthToken()
	p, err := fetchProfile(reqCtx, machine, profileURL)
	if err != nil {
		if errors.Is(err, errTokenRejected) {
			machine.OnAuthFailure(token)
		}
		logger.Warn("profile lookup failed", "error", err)
		return
	}
	logger.Info("device linked", "user_id", p.UserID)
}
