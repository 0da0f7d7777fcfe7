package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/repository"
	"github.com/noah-isme/metropolis-api/internal/service"
)

var (
	userEmail    string
	userName     string
	userPassword string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := models.UserRole(strings.ToUpper(userRole))
		switch role {
		case models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher, models.RoleStudent:
		default:
			return fmt.Errorf("unknown role %q", userRole)
		}
		if userEmail == "" || userPassword == "" {
			return errors.New("--email and --password are required")
		}

		cfg, _, err := environment()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		hash, err := service.HashPassword(userPassword)
		if err != nil {
			return err
		}
		user := &models.User{
			Email:        strings.ToLower(strings.TrimSpace(userEmail)),
			PasswordHash: hash,
			FullName:     userName,
			Role:         role,
			Active:       true,
		}
		if err := repository.NewUserRepository(db).Create(cmd.Context(), user); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) %s\n", user.Email, user.Role, user.ID)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(models.RoleStudent), "SUPERADMIN, ADMIN, TEACHER or STUDENT")
	userCmd.AddCommand(userCreateCmd)
}
