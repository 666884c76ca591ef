package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cli/browser"
	"golang.org/x/term"

	"github.com/florianilch/cloudsession/internal/session"
)

// Login methods offered by the credentials prompt.
const (
	methodPassword = "password"
	methodAPIKey   = "apikey"
	methodSSO      = "sso"
)

// prompter reads interactive answers. End of input counts as cancellation.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// fd is the terminal to read secrets from without echo, -1 if none
	fd          int
	openBrowser func(url string) error
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{
		in:          bufio.NewReader(in),
		out:         out,
		fd:          -1,
		openBrowser: browser.OpenURL,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

func (p *prompter) line(label string) (string, error) {
	_, _ = fmt.Fprint(p.out, label)
	s, err := p.in.ReadString('\n')
	if errors.Is(err, io.EOF) && s == "" {
		return "", session.ErrCancelled
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) secret(label string) (string, error) {
	if p.fd < 0 {
		return p.line(label)
	}

	_, _ = fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// method asks for a login method, defaulting to SSO.
func (p *prompter) method() (string, error) {
	_, _ = fmt.Fprintln(p.out, "Login method:")
	_, _ = fmt.Fprintln(p.out, "  1) one-time passcode (SSO)")
	_, _ = fmt.Fprintln(p.out, "  2) IBMid and password")
	_, _ = fmt.Fprintln(p.out, "  3) API key")

	for {
		answer, err := p.line("Choose [1]: ")
		if err != nil {
			return "", err
		}
		switch answer {
		case "", "1":
			return methodSSO, nil
		case "2":
			return methodPassword, nil
		case "3":
			return methodAPIKey, nil
		}
		_, _ = fmt.Fprintf(p.out, "%q is not a valid choice\n", answer)
	}
}

// passcode returns a PasscodeFunc that points the user at the passcode page.
func (p *prompter) passcode(openBrowser bool) session.PasscodeFunc {
	return func(ctx context.Context, passcodeURL string) (string, error) {
		_, _ = fmt.Fprintf(p.out, "Get a one-time passcode from %s\n", passcodeURL)
		if openBrowser {
			if err := p.openBrowser(passcodeURL); err != nil {
				_, _ = fmt.Fprintln(p.out, "Could not open a browser, open the URL manually.")
			}
		}
		return p.secret("Passcode: ")
	}
}

// chooseAccount lists accounts and reads a 1-based index. An empty answer cancels.
func (p *prompter) chooseAccount(_ context.Context, accounts []session.Account) (*session.Account, error) {
	for i, acc := range accounts {
		_, _ = fmt.Fprintf(p.out, "%3d) %s (%s) %s\n", i+1, acc.Name, acc.ID, acc.Email)
	}

	for {
		answer, err := p.line(fmt.Sprintf("Select an account [1-%d, empty to cancel]: ", len(accounts)))
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return nil, session.ErrCancelled
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(accounts) {
			return &accounts[n-1], nil
		}
		_, _ = fmt.Fprintf(p.out, "%q is not a valid choice\n", answer)
	}
}
