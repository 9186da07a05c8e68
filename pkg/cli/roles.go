package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/docuvault/docuvault/pkg/authz"
)

func newRolesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage roles and role assignments",
	}

	cmd.AddCommand(
		newRolesListCommand(),
		newRolesCreateCommand(),
		newRolesAssignCommand(),
		newRolesRevokeCommand(),
		newRolesBulkAssignCommand(),
	)
	return cmd
}

func newRolesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			roles, err := authz.NewStore(e.db).ListRoles(cmd.Context())
			if err != nil {
				return err
			}

			for _, role := range roles {
				marker := " "
				if role.IsSystem {
					marker = "*"
				}
				superuser := ""
				if authz.IsSuperuserRole(role.Name) {
					superuser = " (superuser)"
				}
				fmt.Printf("%s %-6d %-30s level=%-4d active=%-5v%s\n",
					marker, role.ID, role.Name, role.Level, role.IsActive, superuser)
			}
			return nil
		},
	}
}

func newRolesCreateCommand() *cobra.Command {
	var displayName string
	var level int
	var system bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			role := &authz.Role{
				Name:        args[0],
				DisplayName: displayName,
				Level:       level,
				IsSystem:    system,
				IsActive:    true,
			}
			if role.DisplayName == "" {
				role.DisplayName = role.Name
			}

			if err := authz.NewStore(e.db).CreateRole(cmd.Context(), role); err != nil {
				return err
			}
			fmt.Printf("created role %d: %s\n", role.ID, role.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "Human-readable role name")
	cmd.Flags().IntVar(&level, "level", 0, "Seniority level")
	cmd.Flags().BoolVar(&system, "system", false, "Mark as a system role (cannot be deleted)")
	return cmd
}

func newRolesAssignCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <user-id> <role-name>",
		Short: "Assign a role to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			store := authz.NewStore(e.db)
			role, err := store.GetRoleByName(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			if err := store.AssignRole(cmd.Context(), userID, role.ID, nil, true); err != nil {
				return err
			}
			fmt.Printf("assigned %s to user %d\n", role.Name, userID)
			return nil
		},
	}
}

func newRolesRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user-id> <role-name>",
		Short: "Revoke a role from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			store := authz.NewStore(e.db)
			role, err := store.GetRoleByName(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			if err := store.RevokeRole(cmd.Context(), userID, role.ID); err != nil {
				return err
			}
			fmt.Printf("revoked %s from user %d\n", role.Name, userID)
			return nil
		},
	}
}

func newRolesBulkAssignCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bulk-assign <role-name> <user-id>...",
		Short: "Assign a role to several users at once",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userIDs := make([]int64, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid user id %q", raw)
				}
				userIDs = append(userIDs, id)
			}

			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			store := authz.NewStore(e.db)
			role, err := store.GetRoleByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := store.BulkAssignRole(cmd.Context(), userIDs, role.ID, nil); err != nil {
				return err
			}
			fmt.Printf("assigned %s to %d users\n", role.Name, len(userIDs))
			return nil
		},
	}
}
