package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"site-timelapse/pkg/database"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.load(); err != nil {
				return err
			}
			return ctx.openDB()
		},
	}
	usersCmd.AddCommand(newUsersListCommand())
	usersCmd.AddCommand(newUsersAddCommand())
	usersCmd.AddCommand(newUsersPasswdCommand())
	usersCmd.AddCommand(newUsersDeleteCommand())
	return usersCmd
}

func newUsersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := database.GetAllUsers()
			if err != nil {
				return err
			}
			rows := make([][]string, len(users))
			for i, u := range users {
				rows[i] = []string{strconv.FormatInt(u.ID, 10), u.Username, strconv.FormatBool(u.IsAdmin)}
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{{title: "ID", numeric: true}, {title: "Username"}, {title: "Admin"}}, rows))
			return nil
		},
	}
}

func newUsersAddCommand() *cobra.Command {
	var password string
	var admin bool

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.CreateUser(args[0], password, admin); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password for the new user")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant administrator rights")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUsersPasswdCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Set the password of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.UpdateUserPassword(args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated password for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "New password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUsersDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == database.AdminUsername {
				return fmt.Errorf("the %s account cannot be deleted", database.AdminUsername)
			}
			if err := database.DeleteUser(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
			return nil
		},
	}
}
