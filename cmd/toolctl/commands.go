package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/config"
	"github.com/therealutkarshpriyadarshi/tooldetect/internal/database"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

const commandTimeout = 2 * time.Minute

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "toolctl",
		Short:         "Administration tool for the tool detection service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	cmd.PersistentFlags().String("config", defaultConfig, "Path to the configuration file")

	cmd.AddCommand(migrateCmd(), statusCmd(), seedCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if err := database.Migrate(ctx, cfg.Database.DSN()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return database.MigrationStatus(ctx, cfg.Database.DSN())
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default roles and accounts",
		Long:  "Create the admin and user roles and one account for each. Existing roles and accounts are left untouched.",
		RunE:  runSeed,
	}

	defaults := database.DefaultSeed()
	cmd.Flags().String("admin-password", defaults.Users[0].Password, "Password for the admin account")
	cmd.Flags().String("user-password", defaults.Users[1].Password, "Password for the user account")
	return cmd
}

// seedOptions applies password flags to the default seed
func seedOptions(cmd *cobra.Command) (database.SeedOptions, error) {
	opts := database.DefaultSeed()

	adminPassword, err := cmd.Flags().GetString("admin-password")
	if err != nil {
		return opts, err
	}
	userPassword, err := cmd.Flags().GetString("user-password")
	if err != nil {
		return opts, err
	}

	for i := range opts.Users {
		switch opts.Users[i].Role {
		case models.RoleAdmin:
			opts.Users[i].Password = adminPassword
		case models.RoleUser:
			opts.Users[i].Password = userPassword
		}
		if len(opts.Users[i].Password) < 8 {
			return opts, fmt.Errorf("password for %s must be at least 8 characters", opts.Users[i].Email)
		}
	}
	return opts, nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	opts, err := seedOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	result, err := database.Seed(ctx, database.NewRepository(db.Pool), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, role := range result.CreatedRoles {
		fmt.Fprintf(out, "Created role %s\n", role)
	}
	for _, email := range result.SkippedUsers {
		fmt.Fprintf(out, "User %s already exists, left unchanged\n", email)
	}
	created := make(map[string]bool, len(result.CreatedUsers))
	for _, email := range result.CreatedUsers {
		created[email] = true
	}
	for _, u := range opts.Users {
		if created[u.Email] {
			fmt.Fprintf(out, "Created %s user: %s / %s\n", u.Role, u.Email, u.Password)
		}
	}
	return nil
}
