package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cav-go/internal/app"
	"cav-go/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CavApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "backup create").
func newApp(cmd *cobra.Command, operation string) (*app.CavApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.Options{}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.LogLevel = slog.LevelDebug
	}
	a, err := app.NewCavApp(cmd.Context(), cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal, or reads CAV_PASSPHRASE when stdin
// is not a terminal.
func readPassphrase(prompt string, confirm bool) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if p := os.Getenv("CAV_PASSPHRASE"); p != "" {
			return p, nil
		}
		return "", errors.New("no terminal for passphrase prompt; set CAV_PASSPHRASE")
	}

	fmt.Fprint(os.Stderr, prompt)
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	return string(first), nil
}

var rootCmd = &cobra.Command{
	Use:          "cav",
	Short:        "Compliance audit log and backup tool",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])

		if skip, _ := cmd.Flags().GetBool("skip-keys"); skip {
			return nil
		}
		a, err := newApp(cmd, "config init")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase for backup encryption key: ", true)
		if err != nil {
			return err
		}
		if err := a.SetupEncryption(passphrase); err != nil {
			return fmt.Errorf("generating encryption keys: %w", err)
		}
		fmt.Printf("Encryption keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID:      %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:         %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:          %s\n", cfg.LogDir)
		fmt.Printf("Storage:          %s\n", cfg.Storage.Type)
		fmt.Printf("Audit Capacity:   %d events, %d days\n", cfg.Audit.Capacity, cfg.Audit.RetentionDays)
		fmt.Printf("Backup Capacity:  %d backups, %d days\n", cfg.Backup.Capacity, cfg.Backup.RetentionDays)
		fmt.Printf("Backup Schedule:  every %s\n", cfg.Backup.ScheduleInterval.Std())
		fmt.Printf("Listen Address:   %s\n", cfg.Server.ListenAddr)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API, alert watcher and scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "serve")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx)
	},
}

// parseDetails turns repeated key=value flags into an event details map.
func parseDetails(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	details := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid detail %q: want key=value", p)
		}
		details[k] = v
	}
	return details, nil
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Write debug output to the log")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().Bool("skip-keys", false, "Do not generate encryption keys")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}
