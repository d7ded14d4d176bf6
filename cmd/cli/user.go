package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bannerdesk/banner-service/internal/auth"
	"github.com/bannerdesk/banner-service/internal/identity"
)

var (
	userEmail        string
	userName         string
	userRole         string
	userMunicipality int64
	userBusiness     int64
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage dashboard accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Long: `Create a dashboard account. The password is read from the
BANNER_SERVICE_PASSWORD environment variable. Municipality users need
--municipality, business users need --business.`,
	Example: `  BANNER_SERVICE_PASSWORD=... banner-service user create --email admin@example.com --name 管理者 --role super_admin
  BANNER_SERVICE_PASSWORD=... banner-service user create --email kitami@example.com --name 北見市担当 --role municipality_user --municipality 1`,
	Args: cobra.NoArgs,
	RunE: runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userListCmd)

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "login email")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name used in comment threads")
	userCreateCmd.Flags().StringVar(&userRole, "role", "", "super_admin, creator, municipality_user or business_user")
	userCreateCmd.Flags().Int64Var(&userMunicipality, "municipality", 0, "municipality id of a municipality user")
	userCreateCmd.Flags().Int64Var(&userBusiness, "business", 0, "business id of a business user")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("role")
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	role, err := identity.ParseRole(userRole)
	if err != nil {
		return err
	}
	in := auth.CreateUserInput{
		Email:    userEmail,
		Name:     userName,
		Password: os.Getenv("BANNER_SERVICE_PASSWORD"),
		Role:     role,
	}
	if userMunicipality > 0 {
		in.MunicipalityID = &userMunicipality
	}
	if userBusiness > 0 {
		in.BusinessID = &userBusiness
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.Accounts().CreateUser(ctx, nil, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s, %s)\n", u.ID, u.Email, u.Role)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	actor, err := actingUser(ctx, a.Store)
	if err != nil {
		return err
	}
	users, err := a.Accounts().ListUsers(ctx, actor)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE")
	fmt.Fprintln(w, "--\t-----\t----\t----")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role)
	}
	return w.Flush()
}
