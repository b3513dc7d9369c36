// Command useradd creates a GlycoGuard account from the command line.
//
// The password is prompted for without echo when stdin is a terminal and read
// from the first line of stdin otherwise.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/glycoguard/glycoguard/internal/metrics"
	"github.com/glycoguard/glycoguard/internal/repository"
	"github.com/glycoguard/glycoguard/internal/service"
)

type output struct {
	Created  bool   `json:"created"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		driver   = fs.String("database-driver", envOr("DATABASE_DRIVER", "sqlite"), "Storage engine: sqlite or postgres")
		dsn      = fs.String("database", envOr("DATABASE", "glycoguard.db"), "SQLite path or PostgreSQL connection string")
		username = fs.String("username", "", "Username (required)")
		email    = fs.String("email", "", "Email (required)")
		format   = fs.String("format", "plain", "Output format: plain or json")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *driver == "postgres" && os.Getenv("DATABASE_URL") != "" && !flagSet(fs, "database") {
		*dsn = os.Getenv("DATABASE_URL")
	}

	password, err := readPassword(stdin, stderr)
	if err != nil {
		return err
	}

	in := service.RegisterInput{
		Username:        *username,
		Email:           *email,
		Password:        password,
		ConfirmPassword: password,
	}.Normalize()
	if err := in.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := repository.Open(ctx, strings.ToLower(*driver), *dsn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	creds, err := service.NewCredentialService(store, 1, metrics.NewNoop(), logger)
	if err != nil {
		return err
	}

	created, err := creds.CreateUser(ctx, in.Username, in.Email, in.Password)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	out := output{Created: created, Username: in.Username, Email: in.Email}
	switch *format {
	case "json":
		return json.NewEncoder(stdout).Encode(out)
	default:
		if !created {
			fmt.Fprintf(stdout, "user %q or email %q already exists; nothing changed\n", in.Username, in.Email)
			return nil
		}
		fmt.Fprintf(stdout, "created user %q <%s>\n", in.Username, in.Email)
		return nil
	}
}

// readPassword prompts twice on a terminal and reads one line otherwise.
func readPassword(stdin io.Reader, prompt io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		fmt.Fprint(prompt, "Password: ")
		first, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		fmt.Fprint(prompt, "Confirm password: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if string(first) != string(second) {
			return "", errors.New(service.MsgPasswordMismatch)
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
