package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/rezervator/internal/auth"
	"github.com/erazemk/rezervator/internal/model"
)

func newTokenCommand(configPath *string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <actor>",
		Short: "Print a bearer token that names actor in the audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := strings.TrimSpace(args[0])
			if actor == "" {
				return &model.ValidationError{Field: "actor", Message: "must not be empty"}
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if a.jwtSecret == "" {
				return &model.ConfigError{Key: "server.jwt_secret", Hint: "set a signing secret to issue tokens"}
			}
			token, err := auth.GenerateToken(a.jwtSecret, actor, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", auth.TokenExpiry, "token lifetime")
	return cmd
}
