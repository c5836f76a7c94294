package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/model"
)

// usersView is the output of users list.
type usersView []userView

func (u usersView) Text() string {
	var b strings.Builder
	for _, v := range u {
		b.WriteString(v.Text())
	}
	fmt.Fprintf(&b, "%d account(s)\n", len(u))
	return b.String()
}

// NewUsersCommand creates the users command group.
func NewUsersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts",
		Long: `Manage the accounts that can log in. Listing, creating, updating and
deleting accounts is reserved to managers; anyone may change their own
password.`,
	}

	cmd.AddCommand(newUsersListCommand(rootOpts))
	cmd.AddCommand(newUsersCreateCommand(rootOpts))
	cmd.AddCommand(newUsersUpdateCommand(rootOpts))
	cmd.AddCommand(newUsersDeleteCommand(rootOpts))
	cmd.AddCommand(newUsersPasswdCommand(rootOpts))

	return cmd
}

// accountCall is the shared preamble of the users subcommands.
type accountCall struct {
	env   *Env
	f     *OutputFormatter
	actor model.User
	rem   Remote
}

func (o *RootOptions) accountCall(cmd *cobra.Command) (*accountCall, error) {
	env, err := o.setup(cmd)
	if err != nil {
		return nil, err
	}
	f := o.formatter(cmd)
	actor, err := env.currentUser(cmd.Context(), f)
	if err != nil {
		return nil, err
	}
	rem, err := env.api(f)
	if err != nil {
		return nil, err
	}
	return &accountCall{env: env, f: f, actor: actor, rem: rem}, nil
}

func (c *accountCall) done(text string, data any) error {
	if c.f.Format == "json" {
		return c.f.Success(data)
	}
	return c.f.Success(text)
}

func parseRoleFlag(f *OutputFormatter, s string) (model.Role, error) {
	r, ok := model.ParseRole(s)
	if !ok {
		return "", f.Fail(ExitCommandError, ErrCodeInvalid, fmt.Sprintf("unknown role %q", s), nil)
	}
	return r, nil
}

func newUsersListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.accountCall(cmd)
			if err != nil {
				return err
			}
			users, err := c.env.accounts(c.rem).List(cmd.Context(), c.actor)
			if err != nil {
				return remoteFailure(c.f, "listing accounts failed", err)
			}
			out := make(usersView, len(users))
			for i, u := range users {
				out[i] = newUserView(u)
			}
			return c.f.Success(out)
		},
	}
}

func newUsersCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var name, role, password string

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account",
		Example: `  reqsync users create rui --name "Rui Costa" --role fitter --password s3cret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.accountCall(cmd)
			if err != nil {
				return err
			}
			r, err := parseRoleFlag(c.f, role)
			if err != nil {
				return err
			}
			if name == "" {
				name = args[0]
			}
			u := model.User{Username: args[0], Name: name, Role: r}
			if err := c.env.accounts(c.rem).Create(cmd.Context(), c.actor, u, password); err != nil {
				return remoteFailure(c.f, "creating account failed", err)
			}
			return c.done(fmt.Sprintf("Created account %s.", args[0]), newUserView(u))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (default the username)")
	cmd.Flags().StringVar(&role, "role", "", "role (manager|operations|fitter)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newUsersUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var name, role, password string

	cmd := &cobra.Command{
		Use:   "update <username>",
		Short: "Change an account's name and role",
		Long: `Change an account's name and role. A non-empty --password also
replaces the stored password.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.accountCall(cmd)
			if err != nil {
				return err
			}
			r, err := parseRoleFlag(c.f, role)
			if err != nil {
				return err
			}
			u := model.User{Username: args[0], Name: name, Role: r}
			if err := c.env.accounts(c.rem).Update(cmd.Context(), c.actor, u, password); err != nil {
				return remoteFailure(c.f, "updating account failed", err)
			}
			return c.done(fmt.Sprintf("Updated account %s.", args[0]), newUserView(u))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role (manager|operations|fitter)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (optional)")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func newUsersDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.accountCall(cmd)
			if err != nil {
				return err
			}
			if err := c.env.accounts(c.rem).Delete(cmd.Context(), c.actor, args[0]); err != nil {
				return remoteFailure(c.f, "deleting account failed", err)
			}
			return c.done(fmt.Sprintf("Deleted account %s.", args[0]), map[string]string{"deleted": args[0]})
		},
	}
}

func newUsersPasswdCommand(rootOpts *RootOptions) *cobra.Command {
	var newPassword, oldPassword string

	cmd := &cobra.Command{
		Use:   "passwd [username]",
		Short: "Change a password",
		Long: `Change your own password (the current one is required), or as a
manager reset anyone's password.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.accountCall(cmd)
			if err != nil {
				return err
			}
			username := c.actor.Username
			if len(args) == 1 {
				username = args[0]
			}
			if err := c.env.accounts(c.rem).ChangePassword(cmd.Context(), c.actor, username, newPassword, oldPassword); err != nil {
				return remoteFailure(c.f, "changing password failed", err)
			}
			return c.done(fmt.Sprintf("Password changed for %s.", username), map[string]string{"username": username})
		},
	}

	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password (not needed by managers)")
	_ = cmd.MarkFlagRequired("new")

	return cmd
}
