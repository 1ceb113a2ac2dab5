// Package admincli implements gophauth-admin, the operator command line for
// schema migrations, lockout recovery and role maintenance.
package admincli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var loadConfig = config.LoadConfig

type options struct {
	configFile string
	dsn        string
	backend    Backend
}

// NewRootCommand builds the command tree. Settings come from the same
// defaults, environment and JSON layers the server uses; --dsn overrides the
// database.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "gophauth-admin",
		Short:         "Operator tooling for the gophauth account store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "JSON config file")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN, overrides the configured one")

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateAccountCmd(opts),
		newUnlockCmd(opts),
		newLockedCmd(opts),
		newRoleCmd(opts),
		newTokensCmd(opts),
	)
	return root
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// run wraps fn so that a backend is open while it executes.
func (o *options) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := o.open(cmd.Context()); err != nil {
			return err
		}
		defer func() {
			if cerr := o.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args)
	}
}

func (o *options) open(ctx context.Context) error {
	cfg := loadConfig()
	if o.configFile != "" {
		if err := config.ApplyJSONFile(cfg, o.configFile); err != nil {
			return err
		}
	}
	if o.dsn != "" {
		cfg.DatabaseDSN = o.dsn
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel)).With("module", "admincli")
	b, err := newBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	o.backend = b
	return nil
}

func (o *options) close() error {
	if o.backend == nil {
		return nil
	}
	err := o.backend.Close()
	o.backend = nil
	return err
}

// resolveAccount accepts an account ID, an email or a username.
func (o *options) resolveAccount(ctx context.Context, identifier string) (string, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		return id.String(), nil
	}
	a, err := o.backend.FindAccount(ctx, identifier)
	if err != nil {
		return "", fmt.Errorf("account %q: %w", identifier, err)
	}
	return a.ID, nil
}

var errMissingFlag = errors.New("missing required flag")
