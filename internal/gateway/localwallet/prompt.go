package localwallet

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the local user for secrets and confirmations.
type Prompter interface {
	Password(prompt string) ([]byte, error)
	Confirm(prompt string) (bool, error)
}

type TermPrompter struct {
	In  *os.File
	Out io.Writer
}

func NewTermPrompter() *TermPrompter {
	return &TermPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TermPrompter) Password(prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(p.Out, prompt)

	pw, err := term.ReadPassword(int(p.In.Fd()))
	_, _ = fmt.Fprintln(p.Out)

	if err != nil {
		zeroBytes(pw)
		return nil, fmt.Errorf("password input failed: %w", err)
	}
	if len(pw) < 8 {
		zeroBytes(pw)
		return nil, fmt.Errorf("password must be at least 8 characters long")
	}
	return pw, nil
}

func (p *TermPrompter) Confirm(prompt string) (bool, error) {
	_, _ = fmt.Fprintf(p.Out, "%s [y/N]: ", prompt)

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("confirm input failed: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// NewPasswordTwice asks for a new password and its confirmation.
func NewPasswordTwice(p Prompter) ([]byte, error) {
	pw, err := p.Password("New wallet password: ")
	if err != nil {
		return nil, err
	}
	again, err := p.Password("Repeat password: ")
	if err != nil {
		zeroBytes(pw)
		return nil, err
	}
	defer zeroBytes(again)

	if string(pw) != string(again) {
		zeroBytes(pw)
		return nil, fmt.Errorf("passwords do not match")
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
