package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docuvault/docuvault/pkg/authz"
)

func newPermissionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Manage the module.action grant vocabulary",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			perms, err := authz.NewStore(e.db).ListPermissions(cmd.Context())
			if err != nil {
				return err
			}
			for _, perm := range perms {
				bridged := ""
				if cap, ok := authz.BridgeToCapability(perm.Name); ok {
					bridged = " <-> " + cap
				}
				fmt.Printf("%-6d %-40s active=%-5v%s\n", perm.ID, perm.Name, perm.IsActive, bridged)
			}
			return nil
		},
	}

	grant := &cobra.Command{
		Use:   "grant <role-name> <permission-name>",
		Short: "Grant a permission on a role",
		Args:  cobra.ExactArgs(2),
		RunE:  func(cmd *cobra.Command, args []string) error { return setRolePermission(cmd, args, true) },
	}

	deny := &cobra.Command{
		Use:   "deny <role-name> <permission-name>",
		Short: "Explicitly deny a permission on a role; a deny wins over grants from other roles",
		Args:  cobra.ExactArgs(2),
		RunE:  func(cmd *cobra.Command, args []string) error { return setRolePermission(cmd, args, false) },
	}

	cmd.AddCommand(list, grant, deny)
	return cmd
}

func setRolePermission(cmd *cobra.Command, args []string, granted bool) error {
	name := args[1]
	if authz.ParseToken(name).Kind != authz.KindPermission {
		return fmt.Errorf("%q is not a module.action permission name", name)
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
	perm, err := store.GetPermissionByName(cmd.Context(), name)
	if err != nil {
		return err
	}

	if err := store.SetRolePermission(cmd.Context(), role.ID, perm.ID, granted); err != nil {
		return err
	}

	verb := "granted"
	if !granted {
		verb = "denied"
	}
	fmt.Printf("%s %s on %s\n", verb, perm.Name, role.Name)
	return nil
}

func newCapabilitiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Manage the CATEGORY_ACTION grant vocabulary",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			caps, err := authz.NewStore(e.db).ListCapabilities(cmd.Context())
			if err != nil {
				return err
			}
			for _, cap := range caps {
				bridged := ""
				if perm, ok := authz.BridgeToPermission(cap.Name); ok {
					bridged = " <-> " + perm
				}
				fmt.Printf("%-6d %-40s%s\n", cap.ID, cap.Name, bridged)
			}
			return nil
		},
	}

	assign := &cobra.Command{
		Use:   "assign <role-name> <capability-name>",
		Short: "Assign a capability to a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[1]
			if authz.ParseToken(name).Kind != authz.KindCapability {
				return fmt.Errorf("%q is not a CATEGORY_ACTION capability name", name)
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
			cap, err := store.GetCapabilityByName(cmd.Context(), name)
			if err != nil {
				return err
			}

			if err := store.AssignCapability(cmd.Context(), role.ID, cap.ID); err != nil {
				return err
			}
			fmt.Printf("assigned %s to %s\n", cap.Name, role.Name)
			return nil
		},
	}

	cmd.AddCommand(list, assign)
	return cmd
}
