package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bannerdesk/banner-service/config"
	"github.com/bannerdesk/banner-service/internal/app"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
)

var (
	cfgFile string
	asEmail string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "banner-service",
	Short: "Banner Service CLI - banner review workflow tooling",
	Long: `A CLI for the banner review workflow: bulk import of products and
banners from CSV or XLSX sheets, the needs-attention alert list, account
bootstrap and database migrations.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&asEmail, "as", "", "email of the account the command acts as")
}

// persistentPreRun loads config and the logger before each command
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = initLogger()
	return nil
}

func initLogger() *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if parsedLevel, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		level = parsedLevel
	}

	var output io.Writer
	if cfg.Logging.Format == "json" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.Logging.NoColor}
	}

	log := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &log
}

// openApp wires the services for one command run.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open application: %w", err)
	}
	return a, nil
}

// actingUser resolves --as to the account the command runs under.
func actingUser(ctx context.Context, store database.UserStore) (*identity.User, error) {
	if asEmail == "" {
		return nil, errors.New("--as <email> is required for this command")
	}
	u, err := store.GetUserByEmail(ctx, strings.TrimSpace(asEmail))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("no account with email %s", asEmail)
	}
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
