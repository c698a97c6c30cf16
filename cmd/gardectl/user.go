package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Maelco1/reset/internal/models"
	"github.com/Maelco1/reset/internal/service"
)

func userCmd(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(userCreateCmd(state))
	return cmd
}

func userCreateCmd(state *cli) *cobra.Command {
	var req service.CreateUserRequest
	var role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account (the first administrator is usually created this way)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = models.UserRole(role)
			user, err := state.container.UserAccounts.Create(cmd.Context(), req, "", models.LoginRequest{UserAgent: "gardectl"})
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s, %s) with id %s.\n", user.Username, user.Trigram, user.Role, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "Email")
	cmd.Flags().StringVar(&req.Username, "username", "", "Login")
	cmd.Flags().StringVar(&req.FullName, "name", "", "Full name")
	cmd.Flags().StringVar(&req.Trigram, "trigram", "", "Trigram (defaults to the login)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleDoctor), "administrateur, medecin or remplacant")
	cmd.Flags().StringVar(&req.Password, "password", "", "Initial password")
	for _, name := range []string{"email", "username", "name", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
