package main

import (
	"context"
	"errors"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/appconfig"
	"github.com/MrEthical07/goIdentity/internal/migrate"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := migrate.Run(cfg.DatabaseURL, args[0]); err != nil {
				return err
			}
			v, dirty, err := migrate.Version(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			logger.Info("schema migrated", zap.String("direction", args[0]), zap.Uint("version", v), zap.Bool("dirty", dirty))
			return nil
		},
	}
}

func newSweepCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired one-time codes once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), *envFile, func(ctx context.Context, a *app) error {
				n, err := a.engine.SweepExpiredCodes(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "swept %d expired codes\n", n)
				return nil
			})
		},
	}
}

func newAccountCommand(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts in the Postgres credential store",
	}

	var (
		identifier, displayName, email, phone, secret string
		roles                                         []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if identifier == "" || secret == "" {
				return errors.New("--identifier and --secret are required")
			}
			return withApp(cmd.Context(), *envFile, func(ctx context.Context, a *app) error {
				if a.postgres == nil {
					return errors.New("account commands need IDENTITY_CREDENTIAL_STORE=postgres")
				}
				id := uuid.NewString()
				err := a.postgres.CreateAccount(ctx, goIdentity.Account{
					ID:          id,
					Identifier:  identifier,
					DisplayName: displayName,
					Email:       email,
					Phone:       phone,
				}, secret, roles...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	create.Flags().StringVar(&identifier, "identifier", "", "login identifier")
	create.Flags().StringVar(&displayName, "name", "", "display name")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&phone, "phone", "", "phone number in E.164")
	create.Flags().StringVar(&secret, "secret", "", "initial secret")
	create.Flags().StringSliceVar(&roles, "role", nil, "role, repeatable")

	var provider, providerKey, accountID string
	link := &cobra.Command{
		Use:   "link",
		Short: "Link an external login to an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if provider == "" || providerKey == "" || accountID == "" {
				return errors.New("--provider, --key and --account are required")
			}
			return withApp(cmd.Context(), *envFile, func(ctx context.Context, a *app) error {
				if a.postgres == nil {
					return errors.New("account commands need IDENTITY_CREDENTIAL_STORE=postgres")
				}
				return a.postgres.Link(ctx, provider, providerKey, accountID)
			})
		},
	}
	link.Flags().StringVar(&provider, "provider", "", "external provider name")
	link.Flags().StringVar(&providerKey, "key", "", "provider-specific subject")
	link.Flags().StringVar(&accountID, "account", "", "account id")

	cmd.AddCommand(create, link)
	return cmd
}

func withApp(ctx context.Context, envFile string, fn func(context.Context, *app) error) error {
	cfg, logger, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	return runWithConfig(ctx, cfg, logger, fn)
}

func runWithConfig(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger, fn func(context.Context, *app) error) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
