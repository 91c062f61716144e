package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wrale/cbl-authd/internal/deviceflow"
	"github.com/wrale/cbl-authd/internal/oauth"
)

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored refresh token",
		Long:  "Reset erases the stored refresh token, so the next run links the device again.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)
			return resetDevice(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
		},
	}
}

func resetDevice(ctx context.Context, cfg Config, out io.Writer, logger *slog.Logger) error {
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

	machine, err := deviceflow.New(authCfg, oauth.NewHTTPTransport(), store, deviceflow.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := machine.ClearData(ctx); err != nil {
		return err
	}

	fmt.Fprintln(out, "Stored credentials erased.")
	return nil
}
