// Command adduser creates an account from the command line, for setups that
// keep the registration form closed to the public.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/storage"

	"golang.org/x/term"
)

const defaultDBPath = "expenses.db"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	username string
	password string
	dbPath   string
}

func parseOptions(args []string, stdout, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.username, "user", "", "Username")
	fs.StringVar(&opts.password, "password", "", "Password (optional, will prompt if omitted)")
	fs.StringVar(&opts.dbPath, "db", defaultDBPath, "Path to database file")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.username = strings.TrimSpace(opts.username)
	if opts.username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-db <db_path>]")
		fs.PrintDefaults()
		return opts, errors.New("missing required flags: user")
	}

	// DB_PATH applies only when -db was left at its default.
	if env := os.Getenv("DB_PATH"); env != "" && opts.dbPath == defaultDBPath {
		opts.dbPath = env
	}
	return opts, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseOptions(args, stdout, stderr)
	if err != nil {
		return err
	}

	if opts.password == "" {
		fmt.Fprint(stdout, "Password: ")
		opts.password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(opts.password) == "" {
		return errors.New("password cannot be empty")
	}

	db, err := storage.NewDB(opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := auth.NewCredentials(db).Register(context.Background(), opts.username, opts.password)
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		return fmt.Errorf("user %s already exists", opts.username)
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", opts.username, id)
	return nil
}

// readPassword reads without echo from a terminal, or a single line otherwise.
func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
