package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/notify"
)

// userView is the output shape of an account.
type userView struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func newUserView(u model.User) userView {
	return userView{Username: u.Username, Name: u.Name, Role: string(u.Role)}
}

func (u userView) Text() string {
	return fmt.Sprintf("%s (%s, %s)\n", u.Username, u.Name, u.Role)
}

// loginView is the output of login.
type loginView struct {
	userView
	Notifications string `json:"notifications"`
}

func (l loginView) Text() string {
	return fmt.Sprintf("Logged in as %s (%s).\nDesktop notifications: %s.\n", l.Username, l.Role, l.Notifications)
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store the session",
		Long: `Verify the credentials against the API and store the session in the
local cache. Later commands act as this user until logout. Logging in also
asks for desktop notification permission and reports the answer.

If --password is not given, the password is read from the first line of
standard input.

Example:
  reqsync login admin --password secret
  echo secret | reqsync login admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			rem, err := env.api(f)
			if err != nil {
				return err
			}

			if password == "" {
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				password = strings.TrimRight(line, "\r\n")
			}

			u, err := env.accounts(rem).Login(cmd.Context(), args[0], password)
			if err != nil {
				return remoteFailure(f, "login failed", err)
			}
			perm := notify.NewChannel(env.Host, env.Logger).Request(cmd.Context(), notify.LifecycleLogin)
			return f.Success(loginView{userView: newUserView(u), Notifications: perm.String()})
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			env.accounts(nil).Logout(cmd.Context())
			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(map[string]bool{"logged_out": true})
			}
			return f.Success("Logged out.")
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			u, err := env.currentUser(cmd.Context(), f)
			if err != nil {
				return err
			}
			return f.Success(newUserView(u))
		},
	}
}
