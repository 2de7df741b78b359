// Package admin implements dlogrctl, the operator commands that run against
// the same database and cache as the API server.
package admin

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dmitrijs2005/dlogr/internal/flagx"
	"github.com/dmitrijs2005/dlogr/internal/server/services"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
)

// PasswordEnv supplies the superuser password when prompts are disabled.
const PasswordEnv = "DLOGR_SUPERUSER_PASSWORD"

const usage = `Usage: dlogrctl <command> [flags]

Commands:
  migrate           apply pending database migrations
  createsuperuser   create a staff account with full rights
      -email string      account email
      -name string       display name
      -timezone string   IANA time zone (default "UTC")
      -no-input          do not prompt; password is read from ` + PasswordEnv + `

Server flags such as -d (database DSN) and -r (redis URL) are accepted too.
`

var (
	ErrUsage            = errors.New("usage")
	ErrPasswordMismatch = errors.New("passwords didn't match")
	ErrNotCreated       = errors.New("superuser not created")
)

// Backend is what the commands operate on.
type Backend interface {
	Migrate(ctx context.Context) error
	CreateSuperuser(ctx context.Context, in services.SignupInput) (*services.AuthenticatedAccount, error)
}

type Admin struct {
	backend Backend
	in      *bufio.Reader
	out     io.Writer
}

func New(b Backend, in io.Reader, out io.Writer) *Admin {
	return &Admin{backend: b, in: bufio.NewReader(in), out: out}
}

var commands = map[string]func(a *Admin, ctx context.Context, args []string) error{
	"migrate":         (*Admin).migrate,
	"createsuperuser": (*Admin).createSuperuser,
}

// Known reports whether name is a dlogrctl command.
func Known(name string) bool {
	_, ok := commands[name]
	return ok
}

// Usage prints the command summary.
func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// Run executes args[0] with the remaining arguments.
func (a *Admin) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || !Known(args[0]) {
		Usage(a.out)
		return ErrUsage
	}
	return commands[args[0]](a, ctx, args[1:])
}

func (a *Admin) migrate(ctx context.Context, _ []string) error {
	if err := a.backend.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Database is up to date.")
	return nil
}

type superuserFlags struct {
	email    string
	name     string
	timezone string
	noInput  bool
}

func parseSuperuserFlags(args []string) (superuserFlags, error) {
	var f superuserFlags
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.email, "email", "", "account email")
	fs.StringVar(&f.name, "name", "", "display name")
	fs.StringVar(&f.timezone, "timezone", "UTC", "IANA time zone")
	fs.BoolVar(&f.noInput, "no-input", false, "do not prompt")

	own := flagx.FilterArgs(args, []string{"-email", "-name", "-timezone", "-no-input"})
	if err := fs.Parse(own); err != nil {
		return f, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return f, nil
}

func (a *Admin) createSuperuser(ctx context.Context, args []string) error {
	f, err := parseSuperuserFlags(args)
	if err != nil {
		return err
	}

	in := services.SignupInput{Email: f.email, Name: f.name, Timezone: f.timezone}

	if f.noInput {
		in.Password = os.Getenv(PasswordEnv)
	} else {
		if in.Email == "" {
			if in.Email, err = a.text("Email"); err != nil {
				return err
			}
		}
		if in.Name == "" {
			if in.Name, err = a.text("Name"); err != nil {
				return err
			}
		}
		if in.Password, err = a.newPassword(); err != nil {
			return err
		}
	}

	out, err := a.backend.CreateSuperuser(ctx, in)
	if err != nil {
		if ve, ok := validation.AsError(err); ok {
			a.printFieldErrors(ve)
			return ErrNotCreated
		}
		return err
	}

	fmt.Fprintf(a.out, "Superuser created: %s (%s)\n", out.Account.Email, out.Account.ID)
	fmt.Fprintf(a.out, "Auth token: %s\n", out.AuthToken)
	return nil
}

func (a *Admin) printFieldErrors(ve *validation.Error) {
	fields := make([]string, 0, len(ve.Fields))
	for f := range ve.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range ve.Fields[f] {
			fmt.Fprintf(a.out, "Error: %s: %s\n", f, msg)
		}
	}
}
