package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	pgportal "github.com/kellerva/pgportal"
)

func runCheck() error {
	useColor := term.IsTerminal(int(os.Stderr.Fd()))
	return check(os.Stderr, useColor)
}

// check validates the environment configuration and, when it is complete,
// attempts a real connection (including the tunnel, if configured).
func check(w io.Writer, useColor bool) error {
	config, err := pgportal.FromEnv(os.Getenv)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Configuration loads from environment: %v", err))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'pgportal check' again.")
		return nil
	}
	printCheck(w, useColor, true, "Configuration loads from environment")

	if config.Tunnel.Enabled {
		printCheck(w, useColor, true, fmt.Sprintf("SSH tunnel configured (%s@%s)", config.Tunnel.User, config.Tunnel.Host))
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("Direct connection configured (%s:%d)", config.Connection.Host, config.Connection.Port))
	}

	if config.Insecure {
		printCheck(w, useColor, false, "Read-only mode (INSECURE: write statements will not be blocked)")
	} else {
		printCheck(w, useColor, true, "Read-only mode")
	}

	portal, err := pgportal.New(config.Config, zerolog.Nop())
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Engine assembles: %v", err))
		return nil
	}
	defer portal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := portal.Initialize(ctx); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %v", err))
		return nil
	}
	printCheck(w, useColor, true, "Database reachable")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "All checks passed. Run 'pgportal serve' to start the server.")
	return nil
}

// printCheck prints a single pass/fail line, with ANSI color when enabled.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if useColor {
		if pass {
			fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "\033[31m✗\033[0m %s\n", msg)
		}
		return
	}
	if pass {
		fmt.Fprintf(w, "[ok]   %s\n", msg)
	} else {
		fmt.Fprintf(w, "[fail] %s\n", msg)
	}
}
