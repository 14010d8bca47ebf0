package authctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

// ErrUsage is returned for a missing or unknown command.
var ErrUsage = errors.New("usage error")

const usage = `Usage: authctl <command> [flags]

Commands:
  migrate        apply pending database migrations
  down           roll back the most recent migration
  seed           create the default admin and user from ADMIN_* and USER_* env vars
  create-admin   create an administrator (-email, -username; password is prompted)
`

// Session bundles the I/O a command may use.
type Session struct {
	In     io.Reader
	Out    io.Writer
	Getenv func(string) string
}

// Execute runs the command named by args[0] with tool.
func Execute(ctx context.Context, tool *Tool, args []string, s Session) error {
	if len(args) == 0 {
		fmt.Fprint(s.Out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		return tool.Migrate(ctx)
	case "down", "downgrade":
		return tool.Rollback(ctx)
	case "seed":
		accounts, err := SeedAccountsFromEnv(s.Getenv)
		if err != nil {
			return err
		}
		return tool.Seed(ctx, accounts...)
	case "create-admin":
		a, err := readAdmin(args[1:], s)
		if err != nil {
			return err
		}
		return tool.CreateAdmin(ctx, a)
	default:
		fmt.Fprintf(s.Out, "unknown command %q\n\n%s", args[0], usage)
		return ErrUsage
	}
}

// readAdmin takes email and username from flags, prompting for the ones
// left out, and always prompts for the password.
func readAdmin(args []string, s Session) (Account, error) {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(s.Out)
	email := fs.String("email", "", "admin email")
	username := fs.String("username", "", "admin username")
	if err := fs.Parse(args); err != nil {
		return Account{}, err
	}

	reader := bufio.NewReader(s.In)
	var err error
	if *email == "" {
		if *email, err = promptLine(reader, "Email", s.Out); err != nil {
			return Account{}, err
		}
	}
	if *username == "" {
		if *username, err = promptLine(reader, "Username", s.Out); err != nil {
			return Account{}, err
		}
	}

	password, err := promptPassword(s.Out)
	if err != nil {
		return Account{}, err
	}

	return Account{Email: *email, Username: *username, Password: password, Admin: true}, nil
}
