package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/storage"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			return storage.RunMigrations(cmd.Context(), e.db, e.logger)
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply default roles, vocabularies, resources, and workflow edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			return storage.Seed(cmd.Context(), e.db, e.logger)
		},
	}
}

func newCheckConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Audit grant vocabularies, bridge coverage, and workflow requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			findings, err := authz.CheckConsistency(cmd.Context(), authz.NewStore(e.db), e.logger)
			if err != nil {
				return err
			}
			if len(findings) == 0 {
				fmt.Println("ok: no inconsistencies found")
				return nil
			}

			for _, finding := range findings {
				fmt.Println(finding)
			}
			return fmt.Errorf("%d inconsistencies found", len(findings))
		},
	}
}
