package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/cloudsession/internal/session"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in and select an account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "method",
				Usage: "login method (sso|password|apikey), asked interactively if unset",
			},
			&cli.StringFlag{
				Name:  "username",
				Usage: "IBMid for password login",
			},
			&cli.StringFlag{
				Name:    "apikey",
				Usage:   "API key for API key login",
				Sources: cli.EnvVars("IBMCLOUD_API_KEY"),
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "do not open the passcode page in a browser",
			},
			&cli.BoolFlag{
				Name:  "no-account",
				Usage: "skip account selection",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	_, sess, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	in, out := stdio(cmd)
	p := newPrompter(in, out)

	ok, err := login(ctx, cmd, sess, p)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "Login cancelled.")
		return nil
	}
	_, _ = fmt.Fprintln(out, "Logged in.")

	if cmd.Bool("no-account") {
		return nil
	}
	return selectAccount(ctx, sess, p, out)
}

// login runs the chosen login method. Reports false when the user cancels.
func login(ctx context.Context, cmd *cli.Command, sess *session.Session, p *prompter) (bool, error) {
	method := cmd.String("method")
	switch {
	case method != "":
	case cmd.String("apikey") != "":
		method = methodAPIKey
	case cmd.String("username") != "":
		method = methodPassword
	default:
		var err error
		if method, err = p.method(); err != nil {
			return cancelled(err)
		}
	}

	switch method {
	case methodSSO:
		return sess.LoginWithSSO(ctx, p.passcode(!cmd.Bool("no-browser")))

	case methodPassword:
		username := cmd.String("username")
		if username == "" {
			var err error
			if username, err = p.line("IBMid: "); err != nil || username == "" {
				return cancelled(err)
			}
		}
		password, err := p.secret("Password: ")
		if err != nil || password == "" {
			return cancelled(err)
		}
		return true, sess.LoginWithPassword(ctx, username, password)

	case methodAPIKey:
		apiKey := cmd.String("apikey")
		if apiKey == "" {
			var err error
			if apiKey, err = p.secret("API key: "); err != nil || apiKey == "" {
				return cancelled(err)
			}
		}
		return true, sess.LoginWithAPIKey(ctx, apiKey)

	default:
		return false, fmt.Errorf("unsupported login method %q", method)
	}
}

// cancelled turns prompt cancellation into a quiet false.
func cancelled(err error) (bool, error) {
	if err == nil || errors.Is(err, session.ErrCancelled) {
		return false, nil
	}
	return false, err
}

func selectAccount(ctx context.Context, sess *session.Session, p *prompter, out io.Writer) error {
	ok, err := sess.SelectAccount(ctx, p.chooseAccount)
	if errors.Is(err, session.ErrNoAccounts) {
		_, _ = fmt.Fprintln(out, "No accounts available for this identity.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("selecting account: %w", err)
	}
	if !ok {
		_, _ = fmt.Fprintln(out, "Account selection cancelled.")
		return nil
	}

	id, _ := sess.Account(ctx)
	email, _ := sess.Email(ctx)
	_, _ = fmt.Fprintf(out, "Selected account %s (%s).\n", id, email)
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the refresh token and the selected account",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, sess, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sess.Logout(ctx)
			_, out := stdio(cmd)
			_, _ = fmt.Fprintln(out, "Logged out.")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the login state and the selected account",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "check",
				Usage: "exit non-zero unless logged in with an account",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, sess, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			_, out := stdio(cmd)
			state := sess.State(ctx)
			_, _ = fmt.Fprintf(out, "State:   %s\n", state)
			if id, ok := sess.Account(ctx); ok {
				email, _ := sess.Email(ctx)
				_, _ = fmt.Fprintf(out, "Account: %s\nEmail:   %s\n", id, email)
			}

			if cmd.Bool("check") && state != session.LoggedInWithAccount {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a fresh access token",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-account",
				Usage: "allow a token that is not bound to an account",
			},
			&cli.BoolFlag{
				Name:  "refresh-token",
				Usage: "print the refresh token instead",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, sess, cleanup, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			accountRequired := !cmd.Bool("no-account")
			var tok string
			if cmd.Bool("refresh-token") {
				tok, err = sess.RefreshToken(ctx, accountRequired)
			} else {
				tok, err = sess.AccessToken(ctx, accountRequired)
			}
			if err != nil {
				return err
			}

			_, out := stdio(cmd)
			_, _ = fmt.Fprintln(out, tok)
			return nil
		},
	}
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "list or select accounts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list the accounts visible to the logged-in identity",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, sess, cleanup, err := setup(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					accounts, err := sess.Accounts(ctx)
					if err != nil {
						return err
					}
					selected, _ := sess.Account(ctx)

					_, out := stdio(cmd)
					return writeAccounts(out, accounts, selected)
				},
			},
			{
				Name:  "select",
				Usage: "choose the account tokens are bound to",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, sess, cleanup, err := setup(ctx, cmd)
					if err != nil {
						return err
					}
					defer cleanup()

					in, out := stdio(cmd)
					return selectAccount(ctx, sess, newPrompter(in, out), out)
				},
			},
		},
	}
}

func writeAccounts(out io.Writer, accounts []session.Account, selected string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tID\tNAME\tOWNER")
	for _, acc := range accounts {
		marker := ""
		if acc.ID == selected {
			marker = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, acc.ID, acc.Name, acc.Email)
	}
	return tw.Flush()
}
