package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docuvault/docuvault/pkg/authz"
)

func newResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Manage the capability-gated resource tree",
	}

	cmd.AddCommand(newResourcesListCommand(), newResourcesCreateCommand())
	return cmd
}

func newResourcesListCommand() *cobra.Command {
	var resourceType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			var types []authz.ResourceType
			if resourceType != "" {
				types = append(types, authz.ResourceType(resourceType))
			}

			resources, err := authz.NewStore(e.db).ListResources(cmd.Context(), types...)
			if err != nil {
				return err
			}

			for _, res := range resources {
				gate := "-"
				if res.RequiredCapability != nil {
					gate = *res.RequiredCapability
				}
				path := res.Path
				if method := res.Method(); method != "" {
					path = method + " " + path
				}
				fmt.Printf("%-6d %-12s %-40s gate=%s\n", res.ID, res.Type, path, gate)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resourceType, "type", "", "Filter by type (navigation, route, api)")
	return cmd
}

func newResourcesCreateCommand() *cobra.Command {
	var (
		resourceType string
		name         string
		capability   string
		method       string
		parentID     int64
		sortOrder    int
	)

	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "Register a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := &authz.Resource{
				Type:      authz.ResourceType(resourceType),
				Path:      args[0],
				Name:      name,
				SortOrder: sortOrder,
				IsActive:  true,
			}
			switch res.Type {
			case authz.ResourceNavigation, authz.ResourceRoute, authz.ResourceAPI:
			default:
				return fmt.Errorf("unknown resource type %q", resourceType)
			}
			if res.Name == "" {
				res.Name = strings.Trim(res.Path, "/")
			}
			if capability != "" {
				if authz.ParseToken(capability).Kind != authz.KindCapability {
					return fmt.Errorf("%q is not a CATEGORY_ACTION capability name", capability)
				}
				res.RequiredCapability = &capability
			}
			if parentID != 0 {
				res.ParentID = &parentID
			}
			if method != "" {
				meta, err := json.Marshal(authz.ResourceMetadata{Method: strings.ToUpper(method)})
				if err != nil {
					return err
				}
				res.Metadata = meta
			}

			e, err := connect()
			if err != nil {
				return err
			}
			defer e.close()

			if err := authz.NewStore(e.db).CreateResource(cmd.Context(), res); err != nil {
				return err
			}
			fmt.Printf("created resource %d: %s %s\n", res.ID, res.Type, res.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&resourceType, "type", "api", "Resource type (navigation, route, api)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the path)")
	cmd.Flags().StringVar(&capability, "capability", "", "Capability required to access the resource")
	cmd.Flags().StringVar(&method, "method", "", "HTTP method for api resources")
	cmd.Flags().Int64Var(&parentID, "parent", 0, "Parent resource id for navigation entries")
	cmd.Flags().IntVar(&sortOrder, "sort-order", 0, "Ordering within the navigation tree")
	return cmd
}
