package main

import (
	"context"
	"errors"
	"time"

	identityapp "github.com/flexidesk/backend/internal/application/identity"
	"github.com/flexidesk/backend/internal/infrastructure/auth"
	"github.com/flexidesk/backend/internal/infrastructure/cache"
	"github.com/flexidesk/backend/internal/infrastructure/logger"
	"github.com/flexidesk/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const commandTimeout = 30 * time.Second

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage console accounts",
	}

	var createPassword string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd.Context(), func(ctx context.Context, users *identityapp.UserService) error {
				info, err := users.CreateUser(ctx, args[0], createPassword)
				if err != nil {
					return err
				}
				cmd.Printf("created %s (%s)\n", info.Username, info.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&createPassword, "password", "", "Initial password")
	_ = create.MarkFlagRequired("password")

	var newPassword string
	passwd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Reset a user's password and end their sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd.Context(), func(ctx context.Context, users *identityapp.UserService) error {
				if err := users.SetPassword(ctx, args[0], newPassword); err != nil {
					return err
				}
				cmd.Printf("password of %s changed\n", args[0])
				return nil
			})
		},
	}
	passwd.Flags().StringVar(&newPassword, "password", "", "New password")
	_ = passwd.MarkFlagRequired("password")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default admin when no user exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withUsers(cmd.Context(), func(ctx context.Context, users *identityapp.UserService) error {
				created, err := users.EnsureDefaultAdmin(ctx, a.cfg.Session.AdminDefaultPassword)
				if err != nil {
					return err
				}
				if created {
					cmd.Println("default admin created")
				} else {
					cmd.Println("users already exist, nothing to do")
				}
				return nil
			})
		},
	}

	cmd.AddCommand(create, passwd, initCmd)
	return cmd
}

// withUsers opens the user store and the revocation backend the server uses,
// so a password reset from here ends sessions on running instances too.
func (a *app) withUsers(parent context.Context, fn func(context.Context, *identityapp.UserService) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	db, err := persistence.NewDatabase(&a.cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(a.log, logger.GormLevel("warn"), time.Second)),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	revocation, err := cache.NewRevocationBackend(ctx, a.cfg.Redis, a.cfg.IsProduction(), a.log)
	if err != nil {
		return err
	}
	defer func() {
		_ = revocation.Close()
	}()
	if !revocation.Distributed() {
		a.log.Debug("Revocation store is in memory, running servers keep existing sessions")
	}

	users := identityapp.NewUserService(
		persistence.NewGormUserRepository(db.DB),
		revocation.Store,
		sessionMaxAge(a.cfg.Session.MaxAge),
		a.log,
	)
	if err := fn(ctx, users); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			a.log.Error("User store did not answer in time", zap.Duration("timeout", commandTimeout))
		}
		return err
	}
	return nil
}

func sessionMaxAge(configured time.Duration) time.Duration {
	if configured <= 0 {
		return auth.DefaultMaxAge
	}
	return configured
}
