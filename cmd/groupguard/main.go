package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stake-plus/groupguard/src/actions"
	guardmodule "github.com/stake-plus/groupguard/src/actions/guard"
	"github.com/stake-plus/groupguard/src/config"
	"github.com/stake-plus/groupguard/src/data"
	"github.com/stake-plus/groupguard/src/guard/store"
	"github.com/stake-plus/groupguard/src/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "groupguard",
	Short:         "Discord join verification and keyword filter bot",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.ReadFile(cfgFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./configs/groupguard.yaml or ./groupguard.yaml)")
	rootCmd.PersistentFlags().String("dsn", "", "database DSN; prefix with sqlite: for a SQLite file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = config.Viper().BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	_ = config.Viper().BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	purgeCmd.Flags().Duration("grace", 0, "only purge verifications expired longer than this (default from purge_grace)")

	rootCmd.AddCommand(serveCmd, migrateCmd, purgeCmd, versionCmd)
}

func bootstrap() (*zap.Logger, *gorm.DB, error) {
	log, err := logging.New(config.GetSetting("log_level", "LOG_LEVEL", "info"), false)
	if err != nil {
		return nil, nil, err
	}
	dsn := config.GetSetting("dsn", "GROUPGUARD_DSN", "")
	if dsn == "" {
		if dsn, err = data.GetDSN(); err != nil {
			return nil, nil, err
		}
	}
	db, err := data.Connect(dsn, log)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	return log, db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&data.Setting{}); err != nil {
		return fmt.Errorf("migrate settings: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("migrate guard tables: %w", err)
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guard bot and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootLog, db, err := bootstrap()
		if err != nil {
			return err
		}
		if err := migrate(db); err != nil {
			return err
		}

		cfg := config.LoadGuardConfig(db)
		log, err := logging.New(cfg.LogLevel, cfg.LogDev)
		if err != nil {
			bootLog.Warn("invalid log level, keeping bootstrap logger", zap.Error(err))
			log = bootLog
		}
		defer log.Sync() //nolint:errcheck

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		manager, err := actions.StartAll(ctx, &cfg, store.NewGormStore(db), log)
		if err != nil {
			return fmt.Errorf("actions start: %w", err)
		}
		log.Info("groupguard running", zap.String("version", version))

		// Wait for termination
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		manager.Stop(stopCtx)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, db, err := bootstrap()
		if err != nil {
			return err
		}
		if err := migrate(db); err != nil {
			return err
		}
		log.Info("migration complete")
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete pending verifications that expired and were never resolved",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, db, err := bootstrap()
		if err != nil {
			return err
		}
		cfg := config.LoadGuardConfig(db)
		grace := cfg.PurgeGrace
		if g, _ := cmd.Flags().GetDuration("grace"); g > 0 {
			grace = g
		}
		n, err := guardmodule.NewJanitor(store.NewGormStore(db), 0, grace, log).Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired verifications\n", n)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}
