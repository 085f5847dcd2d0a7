package ux

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Prompter collects input from the user.
type Prompter interface {
	// Credentials asks for a login and password. A non-empty login is used
	// as the initial value.
	Credentials(ctx context.Context, title, login string) (string, string, error)
	// Password asks for a password only.
	Password(ctx context.Context, title string) (string, error)
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, title string, defaultYes bool) (bool, error)
}

// FormPrompter prompts with huh forms.
type FormPrompter struct {
	// Accessible switches huh to plain line-based prompts.
	Accessible bool
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// Credentials implements Prompter.
func (p FormPrompter) Credentials(ctx context.Context, title, login string) (string, string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Login").
				Value(&login).
				Validate(required("login")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(required("password")),
		).Title(title),
	).WithAccessible(p.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(login), password, nil
}

// Password implements Prompter.
func (p FormPrompter) Password(ctx context.Context, title string) (string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(required("password")),
		),
	).WithAccessible(p.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return password, nil
}

// Confirm implements Prompter.
func (p FormPrompter) Confirm(ctx context.Context, title string, defaultYes bool) (bool, error) {
	answer := defaultYes
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	).WithAccessible(p.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return answer, nil
}

// ScriptedPrompter answers from fixed values. It is used when stdin is not
// a terminal and in tests.
type ScriptedPrompter struct {
	Login    string
	Secret   string
	Answer   bool
	Err      error
	Requests int
}

// Credentials implements Prompter.
func (p *ScriptedPrompter) Credentials(_ context.Context, _ string, login string) (string, string, error) {
	p.Requests++
	if p.Err != nil {
		return "", "", p.Err
	}
	if p.Login != "" {
		login = p.Login
	}
	return login, p.Secret, nil
}

// Password implements Prompter.
func (p *ScriptedPrompter) Password(context.Context, string) (string, error) {
	p.Requests++
	return p.Secret, p.Err
}

// Confirm implements Prompter.
func (p *ScriptedPrompter) Confirm(context.Context, string, bool) (bool, error) {
	p.Requests++
	return p.Answer, p.Err
}

var (
	_ Prompter = FormPrompter{}
	_ Prompter = (*ScriptedPrompter)(nil)
)
