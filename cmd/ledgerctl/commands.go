// cmd/ledgerctl/commands.go
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/domain/inventory"
	"github.com/your-org/inventory-ledger/internal/domain/ledger"
	"github.com/your-org/inventory-ledger/internal/infrastructure/database/redis"
	"github.com/your-org/inventory-ledger/internal/infrastructure/database/relational"
	"github.com/your-org/inventory-ledger/internal/pkg/auth"
	"github.com/your-org/inventory-ledger/internal/pkg/logger"
)

// app holds what a command opened so PostRun can close it
type app struct {
	loadConfig func() (*config.Config, error)
	verbose    bool

	cfg      *config.Config
	log      *logrus.Logger
	db       *relational.DB
	redis    *redis.Client
	services *inventory.Services
}

func newRootCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	a := &app{loadConfig: loadConfig}

	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate the inventory ledger",
		Long:         "ledgerctl verifies hash chains, rebuilds projections and runs maintenance against the ledger database.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			a.log = logger.Discard()
			if a.verbose {
				a.log = logger.New(cfg)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log to stdout using the configured logger")

	root.AddCommand(
		a.migrateCmd(),
		a.verifyCmd(),
		a.verifyAllCmd(),
		a.rebuildCmd(),
		a.sweepCmd(),
		a.tokenCmd(),
	)
	return root
}

// open connects to the database and wires the services
func (a *app) open() error {
	db, err := relational.NewConnection(a.cfg, a.log)
	if err != nil {
		return err
	}
	a.db = db

	redisClient, err := redis.NewConnection(a.cfg, a.log)
	if err != nil {
		return err
	}
	a.redis = redisClient

	a.services = inventory.NewServices(db.GetDB(), redisClient.GetClient(), a.cfg, a.log)
	return nil
}

func (a *app) close() error {
	if err := a.redis.Close(); err != nil {
		return err
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *app) migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema, indexes and event triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := relational.NewConnection(a.cfg, a.log)
			if err != nil {
				return err
			}
			a.db = db

			migration := relational.NewMigration(db.GetDB(), db.Driver(), a.log)
			if err := migration.Run(); err != nil {
				return err
			}
			if seed {
				if err := migration.SeedInitialData(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", db.Driver())
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the development location and catalog items")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var tenant, item, loc string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify one partition's hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := partitionKey(tenant, item, loc)
			if err != nil {
				return err
			}
			if err := a.open(); err != nil {
				return err
			}

			result, err := a.services.Verifier.Verify(cmd.Context(), key)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("chain broken: %s", result.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&item, "item", "", "catalog item id")
	cmd.Flags().StringVar(&loc, "location", "", "location id")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func (a *app) verifyAllCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "verify-all",
		Short: "Verify every partition of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenant) == "" {
				return fmt.Errorf("--tenant is required")
			}
			if err := a.open(); err != nil {
				return err
			}

			results, err := a.services.Verifier.VerifyAll(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, results); err != nil {
				return err
			}

			broken := 0
			for _, r := range results {
				if !r.Valid {
					broken++
				}
			}
			if broken > 0 {
				return fmt.Errorf("%d of %d partitions failed verification", broken, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	return cmd
}

func (a *app) rebuildCmd() *cobra.Command {
	var tenant, item, loc string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild a partition's projection from its verified chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := partitionKey(tenant, item, loc)
			if err != nil {
				return err
			}
			if err := a.open(); err != nil {
				return err
			}

			projection, err := a.services.Projections.Rebuild(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd, projection)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&item, "item", "", "catalog item id")
	cmd.Flags().StringVar(&loc, "location", "", "location id")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed reservations once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}

			result, err := a.services.Sweeper.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func (a *app) tokenCmd() *cobra.Command {
	var tenant, subject string
	var admin bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development access token with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.IsProduction() {
				return fmt.Errorf("refusing to sign tokens in production")
			}

			var roles []string
			if admin {
				roles = append(roles, auth.RoleAdmin)
			}
			token, err := auth.NewJWTManager(a.cfg).GenerateAccessToken(tenant, subject, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", relational.DevTenant, "tenant id")
	cmd.Flags().StringVar(&subject, "subject", "ledgerctl", "actor recorded on events")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the inventory admin role")
	return cmd
}

func partitionKey(tenant, item, loc string) (ledger.PartitionKey, error) {
	itemID, err := uuid.Parse(item)
	if err != nil {
		return ledger.PartitionKey{}, fmt.Errorf("invalid --item: %w", err)
	}
	locationID, err := uuid.Parse(loc)
	if err != nil {
		return ledger.PartitionKey{}, fmt.Errorf("invalid --location: %w", err)
	}
	return ledger.NewPartitionKey(tenant, itemID, locationID), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
