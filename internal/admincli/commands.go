package admincli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/spf13/cobra"
)

func newMigrateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, args []string) error {
			if err := o.backend.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		}),
	}
}

func newCreateAccountCmd(o *options) *cobra.Command {
	var userName, email, role string

	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Register an account, prompting for its password",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			reader := bufio.NewReader(cmd.InOrStdin())

			var err error
			if userName == "" {
				if userName, err = GetSimpleText(reader, "Username: ", out); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = GetSimpleText(reader, "Email: ", out); err != nil {
					return err
				}
			}
			if userName == "" || email == "" {
				return fmt.Errorf("%w: username and email", errMissingFlag)
			}

			password, err := GetNewPassword(out)
			if err != nil {
				return err
			}

			account, err := o.backend.RegisterAccount(ctx, userName, email, password)
			if err != nil {
				return err
			}
			if role != "" {
				if err := o.backend.AssignRole(ctx, account.ID, models.RoleName(role)); err != nil {
					return fmt.Errorf("account %s created, role not assigned: %w", account.ID, err)
				}
			}
			fmt.Fprintf(out, "created account %s (%s)\n", account.ID, account.UserName)
			return nil
		}),
	}

	cmd.Flags().StringVar(&userName, "username", "", "username of the new account")
	cmd.Flags().StringVar(&email, "email", "", "email of the new account")
	cmd.Flags().StringVar(&role, "role", "", "role to assign instead of the default")
	return cmd
}

func newUnlockCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <account>",
		Short: "Clear the lock and failed-attempt counter of an account",
		Long:  "Clear the lock and failed-attempt counter of an account given by ID, email or username.",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := o.resolveAccount(ctx, args[0])
			if err != nil {
				return err
			}
			if err := o.backend.Unlock(ctx, id); err != nil {
				return fmt.Errorf("unlock %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", id)
			return nil
		}),
	}
}

func newLockedCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "locked",
		Short: "List locked account IDs",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, args []string) error {
			ids, err := o.backend.ListLocked(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		}),
	}
}

func newRoleCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect and maintain roles",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List roles and their capabilities",
			Args:  cobra.NoArgs,
			RunE: o.run(func(cmd *cobra.Command, args []string) error {
				roles, err := o.backend.ListRoles(cmd.Context())
				if err != nil {
					return err
				}
				for _, r := range roles {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.Name, r.Name.Display(), capabilityList(r.Capabilities))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the built-in roles if missing",
			Args:  cobra.NoArgs,
			RunE: o.run(func(cmd *cobra.Command, args []string) error {
				if err := o.backend.SeedRoles(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "built-in roles present")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "assign <account> <role>",
			Short: "Assign a role to an account",
			Args:  cobra.ExactArgs(2),
			RunE: o.run(func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := o.resolveAccount(ctx, args[0])
				if err != nil {
					return err
				}
				if err := o.backend.AssignRole(ctx, id, models.RoleName(args[1])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "assigned %s to %s\n", args[1], id)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete <role>",
			Short: "Delete a role; its holders are left without one",
			Args:  cobra.ExactArgs(1),
			RunE: o.run(func(cmd *cobra.Command, args []string) error {
				if err := o.backend.DeleteRole(cmd.Context(), models.RoleName(args[0])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted role %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

func newTokensCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain password reset tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired and used reset tokens",
		Args:  cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, args []string) error {
			n, err := o.backend.PurgeExpiredTokens(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d tokens\n", n)
			return nil
		}),
	})
	return cmd
}

func capabilityList(c models.Capabilities) string {
	var names []string
	for _, capability := range models.AllCapabilities {
		if c.Has(capability) {
			names = append(names, string(capability))
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
