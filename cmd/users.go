/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/storefront/apiserver/config"
	"github.com/storefront/apiserver/internal/db"
	"github.com/storefront/apiserver/internal/store"
)

var (
	grantEmail string
	grantRole  string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersGrantRoleCmd = &cobra.Command{
	Use:   "grant-role",
	Short: "Grant a role to the user with the given email",
	Long: `Grants a seeded role to an existing user. Usage:

	storefront users grant-role --email admin@example.com --role admin
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		users := store.NewUserRepository(conn)
		roles := store.NewRoleRepository(conn)

		user, err := users.GetByEmail(cmd.Context(), grantEmail)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("user %q not found", grantEmail)
			}
			return err
		}

		role, err := roles.GetByName(cmd.Context(), grantRole)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			available, listErr := roles.List(cmd.Context())
			if listErr != nil {
				return listErr
			}
			names := make([]string, 0, len(available))
			for _, r := range available {
				names = append(names, r.Name)
			}
			return fmt.Errorf("role %q not found, available: %s", grantRole, strings.Join(names, ", "))
		}

		if err := roles.Assign(cmd.Context(), user.ID, role.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", role.Name, user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersGrantRoleCmd)

	usersGrantRoleCmd.Flags().StringVar(&grantEmail, "email", "", "email of the user")
	usersGrantRoleCmd.Flags().StringVar(&grantRole, "role", "", "role to grant (admin, owner, user)")
	_ = usersGrantRoleCmd.MarkFlagRequired("email")
	_ = usersGrantRoleCmd.MarkFlagRequired("role")
}
