package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/panchalshubham0608/securekey/internal/app"
	"github.com/panchalshubham0608/securekey/internal/auth"
	"github.com/panchalshubham0608/securekey/internal/config"
	"github.com/panchalshubham0608/securekey/internal/logging"
	"github.com/panchalshubham0608/securekey/internal/platform"
	"github.com/panchalshubham0608/securekey/internal/vault"
)

// env is one signed-in command invocation.
type env struct {
	app  *app.App
	id   auth.Identity
	sess *vault.Session
}

func (e *env) close(ctx context.Context) {
	if e.sess != nil {
		e.app.Lock(e.sess)
	}
	_ = e.app.Close(ctx)
}

func openApp(cmd *cobra.Command, rf *rootFlags) (*app.App, error) {
	cfg, err := config.Load(cmd, rf.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err := platform.DisableCoreDumps(); err != nil {
		logger.Warn("could not disable core dumps", "err", err)
	}
	return app.New(cmd.Context(), cfg, app.Options{
		Logger: logger,
		Presence: func(_ context.Context, prompt string) (string, error) {
			return readSecret(cmd, prompt+" PIN: ")
		},
	})
}

// signIn opens the app and unlocks the vault. With --quick it tries the
// device enrollment first and falls back to the master password.
func signIn(cmd *cobra.Command, rf *rootFlags) (*env, error) {
	a, err := openApp(cmd, rf)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	e := &env{app: a}

	if rf.quick {
		if uid, ok := a.Quick.EnrolledUID(ctx); ok {
			id, err := a.Users.Lookup(ctx, uid)
			if err == nil && (rf.email == "" || strings.EqualFold(id.Email, rf.email)) {
				sess, ok, err := a.QuickUnlock(ctx, uid)
				switch {
				case err != nil:
					fmt.Fprintln(cmd.ErrOrStderr(), "quick unlock failed:", err)
				case ok:
					e.id, e.sess = id, sess
					return e, nil
				}
				if rf.email == "" {
					rf.email = id.Email
				}
			}
		}
	}

	email, err := emailOf(cmd, rf)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	pw, err := readSecret(cmd, "Master password: ")
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if e.id, e.sess, err = a.Login(ctx, email, pw); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return e, nil
}

func emailOf(cmd *cobra.Command, rf *rootFlags) (string, error) {
	if rf.email != "" {
		return rf.email, nil
	}
	s, err := readLine(cmd, "Email: ")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", errors.New("email is required")
	}
	return s, nil
}

// readSecret prompts without echo on a terminal and reads a plain line
// otherwise.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	return readRaw(cmd.InOrStdin())
}

func readLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	return readRaw(cmd.InOrStdin())
}

var (
	inputSrc io.Reader
	input    *bufio.Reader
)

func readRaw(r io.Reader) (string, error) {
	if r != inputSrc {
		inputSrc, input = r, bufio.NewReader(r)
	}
	s, err := input.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// readNewSecret asks twice and requires both answers to match.
func readNewSecret(cmd *cobra.Command, what string) (string, error) {
	first, err := readSecret(cmd, "New "+what+": ")
	if err != nil {
		return "", err
	}
	second, err := readSecret(cmd, "Repeat "+what+": ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("%ss do not match", what)
	}
	return first, nil
}
