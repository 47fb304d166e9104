package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/victorgomez09/supportportal/internal/auth/attempts"
	"github.com/victorgomez09/supportportal/internal/auth/database"
	"github.com/victorgomez09/supportportal/internal/auth/handlers"
	"github.com/victorgomez09/supportportal/internal/auth/models"
	"github.com/victorgomez09/supportportal/internal/auth/passwords"
	"github.com/victorgomez09/supportportal/internal/auth/roles"
	"github.com/victorgomez09/supportportal/internal/auth/service"
	"github.com/victorgomez09/supportportal/internal/auth/token"
	"github.com/victorgomez09/supportportal/internal/auth/validation"
	"github.com/victorgomez09/supportportal/internal/config"
	"github.com/victorgomez09/supportportal/internal/logger"
	"github.com/victorgomez09/supportportal/internal/mail"
)

const consoleDeliveryWait = 10 * time.Second

func newUsersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts directly in the database",
	}
	cmd.AddCommand(newUsersAddCommand(opts), newUsersListCommand(opts))
	return cmd
}

type userFlags struct {
	username  string
	email     string
	firstName string
	lastName  string
	role      string
}

func newUsersAddCommand(opts *rootOptions) *cobra.Command {
	var f userFlags

	cmd := &cobra.Command{
		Use:   "add",
		Args:  cobra.NoArgs,
		Short: "Create an account and print its generated password",
		Long: "Create an active account with the given role. The generated password is " +
			"printed to stdout instead of being mailed, which makes this the way to " +
			"bootstrap the first SUPER_ADMIN.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(cfg *config.Config, table *roles.Table, db *database.SQLiteDB, log *zap.Logger) error {
				if err := validation.Struct(handlers.RegisterRequest{
					FirstName: f.firstName,
					LastName:  f.lastName,
					Username:  f.username,
					Email:     f.email,
				}); err != nil {
					return err
				}
				role, err := table.Parse(f.role)
				if err != nil {
					return err
				}

				dispatcher := mail.NewDispatcher(mail.NewWriterSender(cmd.OutOrStdout()), mail.DispatcherConfig{Workers: 1}, log)
				defer dispatcher.Close(context.Background())

				tokens, err := token.NewService(token.Config{Secret: []byte(cfg.Auth.JWTSecret)})
				if err != nil {
					return err
				}
				users := service.NewAuthService(service.Dependencies{
					Accounts: db,
					Attempts: attempts.NewTracker(),
					Tokens:   tokens,
					Roles:    table,
					Encoder:  passwords.NewBcryptEncoder(cfg.Auth.BcryptCost),
					Mailer:   dispatcher,
					Logger:   log,
				}, service.AuthConfig{
					PasswordLength: cfg.Auth.PasswordLength,
					MailSubject:    cfg.Mail.Subject,
				})

				identity, delivery, err := users.AddUser(cmd.Context(), models.AccountChanges{
					Profile: models.Profile{
						FirstName: f.firstName,
						LastName:  f.lastName,
						Username:  f.username,
						Email:     f.email,
					},
					Role:     role,
					IsActive: true,
				})
				if err != nil {
					return err
				}

				ctx, cancel := context.WithTimeout(cmd.Context(), consoleDeliveryWait)
				defer cancel()
				if err := delivery.Wait(ctx); err != nil {
					return fmt.Errorf("account created but the password could not be printed: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Successfully created user '%s' with role '%s'\n", identity.Username, identity.Role)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&f.username, "username", "u", "", "username of the new account")
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "email of the new account")
	cmd.Flags().StringVar(&f.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last name")
	cmd.Flags().StringVarP(&f.role, "role", "r", string(models.RoleUser), "role (USER, HR, MANAGER, ADMIN, SUPER_ADMIN)")
	for _, name := range []string{"username", "email", "first-name", "last-name"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newUsersListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		Short:   "List all accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(_ *config.Config, _ *roles.Table, db *database.SQLiteDB, _ *zap.Logger) error {
				identities, err := db.List(cmd.Context())
				if err != nil {
					return err
				}
				return printUsers(cmd.OutOrStdout(), identities)
			})
		},
	}
}

// withStore loads configuration and opens the account store for fn.
func withStore(ctx context.Context, opts *rootOptions, fn func(*config.Config, *roles.Table, *database.SQLiteDB, *zap.Logger) error) error {
	logs, log, err := initializeLogging(opts.logConfigs)
	if err != nil {
		return err
	}
	defer func() { _ = logs.Close() }()

	cfg, err := loadConfig(opts.configPath, log)
	if err != nil {
		return err
	}
	table, err := cfg.RoleTable()
	if err != nil {
		return err
	}

	db, err := database.NewSQLiteDB(ctx, database.Options{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, table)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return fn(cfg, table, db, logs.Get(logger.AuthLogger))
}

func printUsers(w io.Writer, identities []models.Identity) error {
	if len(identities) == 0 {
		_, err := fmt.Fprintln(w, "No users found in database")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tUSERNAME\tEMAIL\tROLE\tACTIVE\tLOCKED\tJOINED")
	for _, u := range identities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%t\t%s\n",
			u.UserID, u.Username, u.Email, u.Role, u.IsActive, u.IsLocked,
			u.JoinDate.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
