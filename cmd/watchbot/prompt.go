package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"tools.zach/dev/watchbot/internal/config"
)

// errNoSecret is returned when no token is configured and none can be
// prompted for.
var errNoSecret = errors.New("no token available")

// terminalAsker returns a line prompt on stdin when it is a terminal, or nil
// when it is not.
func terminalAsker(ctx context.Context, stdin io.Reader, stderr io.Writer) func(label string) (string, error) {
	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return lineAsker(ctx, bufio.NewReader(f), stderr)
}

// lineAsker prints "label: " to out and reads one trimmed line from r. It
// gives up when ctx ends.
func lineAsker(ctx context.Context, r *bufio.Reader, out io.Writer) func(label string) (string, error) {
	return func(label string) (string, error) {
		fmt.Fprintf(out, "%s: ", label)
		line, err := readLine(ctx, func() (string, error) { return r.ReadString('\n') })
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if ctx.Err() != nil {
				fmt.Fprintln(out)
			}
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

// readSecret returns the token from the configured environment variable, or
// prompts for it without echo when stdin is a terminal. An interrupted prompt
// puts the terminal back the way it was.
func readSecret(ctx context.Context, cfg *config.Config, stdin io.Reader, stderr io.Writer) (string, error) {
	if secret := cfg.TokenFromEnv(); secret != "" {
		return secret, nil
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		if state, err := term.GetState(fd); err == nil {
			defer func() {
				if ctx.Err() != nil {
					_ = term.Restore(fd, state)
				}
			}()
		}
		return promptSecret(ctx, stderr, func() ([]byte, error) {
			return term.ReadPassword(fd)
		})
	}
	if cfg.Discord.TokenEnv == "" {
		return "", errNoSecret
	}
	return "", fmt.Errorf("%w: set $%s", errNoSecret, cfg.Discord.TokenEnv)
}

// promptSecret writes the prompt to out and reads one line with read, giving
// up when ctx ends.
func promptSecret(ctx context.Context, out io.Writer, read func() ([]byte, error)) (string, error) {
	fmt.Fprint(out, "Token: ")
	line, err := readLine(ctx, func() (string, error) {
		b, err := read()
		return string(b), err
	})
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", errNoSecret
	}
	return secret, nil
}
