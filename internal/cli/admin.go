package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
)

var (
	createUserUsername   string
	createUserEmail      string
	createUserEmployeeID string
	createUserMobile     string
	createUserPassword   string
	createUserType       string
	createUserRoles      []string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin utilities",
	Long: `Administrative utilities for Formwright.

Commands:
  create-user  Register an identity user with a role`,
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Register a new identity user",
	Long: `Register a new user directly against the database, bypassing the
HTTP API. Useful for bootstrapping the first superadmin or seeding a
known employee account.

Examples:
  formwright admin create-user --email admin@example.com --password s3cret123
  formwright admin create-user --employee-id E42 --password s3cret123 --roles admin,editor
  formwright admin create-user --mobile +15551234567 --type general`,
	RunE: runCreateUser,
}

func init() {
	createUserCmd.Flags().StringVar(&createUserUsername, "username", "", "Username")
	createUserCmd.Flags().StringVar(&createUserEmail, "email", "", "Email address")
	createUserCmd.Flags().StringVar(&createUserEmployeeID, "employee-id", "", "Employee ID")
	createUserCmd.Flags().StringVar(&createUserMobile, "mobile", "", "Mobile number")
	createUserCmd.Flags().StringVar(&createUserPassword, "password", "", "Password (ignored for --type general)")
	createUserCmd.Flags().StringVar(&createUserType, "type", "employee", "User type: employee or general")
	createUserCmd.Flags().StringSliceVar(&createUserRoles, "roles", nil, "Roles to grant (defaults to 'user', or 'superadmin' if this is the first user)")

	adminCmd.AddCommand(createUserCmd)
	rootCmd.AddCommand(adminCmd)
}

func openAdminDB() (*database.DB, *config.Config, error) {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.Warn().Err(err).Msg("no config file found, using defaults")
		cfg = config.Default()
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return db, cfg, nil
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	db, cfg, err := openAdminDB()
	if err != nil {
		return err
	}
	defer db.Close()

	userType := auth.UserType(strings.ToLower(createUserType))
	if userType != auth.UserTypeEmployee && userType != auth.UserTypeGeneral {
		return fmt.Errorf("invalid --type %q: must be employee or general", createUserType)
	}

	roles := make([]auth.Role, 0, len(createUserRoles))
	for _, r := range createUserRoles {
		role := auth.Role(strings.ToLower(strings.TrimSpace(r)))
		if !auth.IsValidRole(role) {
			return fmt.Errorf("invalid role %q", r)
		}
		roles = append(roles, role)
	}

	bl := auth.NewTokenBlacklist(db)
	defer bl.Stop()

	svc := auth.NewService(db, &cfg.Auth, nil, bl)

	user, err := svc.Register(cmd.Context(), auth.RegisterInput{
		Username:   createUserUsername,
		Email:      createUserEmail,
		EmployeeID: createUserEmployeeID,
		Mobile:     createUserMobile,
		Password:   createUserPassword,
		UserType:   userType,
		Roles:      roles,
	})
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	fmt.Println("User created successfully.")
	fmt.Printf("  ID:       %s\n", user.ID)
	if user.Username != "" {
		fmt.Printf("  Username: %s\n", user.Username)
	}
	if user.Email != "" {
		fmt.Printf("  Email:    %s\n", user.Email)
	}
	if user.EmployeeID != "" {
		fmt.Printf("  Employee: %s\n", user.EmployeeID)
	}
	if user.Mobile != "" {
		fmt.Printf("  Mobile:   %s\n", user.Mobile)
	}
	fmt.Printf("  Roles:    %s\n", strings.Join(rolesToStrings(user.Roles), ", "))

	return nil
}

func rolesToStrings(roles []auth.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
