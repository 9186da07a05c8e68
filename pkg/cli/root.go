package cli

import (
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"github.com/docuvault/docuvault/pkg/config"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/storage"
)

// env carries the shared state commands need once connected
type env struct {
	cfg    *config.Config
	db     *sql.DB
	logger *observability.Logger
}

// connect loads configuration and opens the database. Commands call it in
// their RunE so `--help` never needs a live database.
func connect() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Log.Level), os.Stderr)

	db, err := storage.OpenPostgres(cfg.Storage)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, db: db, logger: logger}, nil
}

func (e *env) close() {
	e.db.Close()
}

// NewRootCommand creates the docuvault-admin command tree
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "docuvault-admin",
		Short:         "DocuVault administration",
		Long:          "Manage roles, grants, resources, and the database schema of a DocuVault installation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRolesCommand(),
		newPermissionsCommand(),
		newCapabilitiesCommand(),
		newResourcesCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newCheckConfigCommand(),
	)

	return root
}
