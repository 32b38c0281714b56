// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/fingervote/ledger"
	"github.com/danielhkuo/fingervote/models"
)

const adminUsage = `usage: fingervote admin <subcommand>

  login -email EMAIL        sign in; password from -password, FINGERVOTE_ADMIN_PASSWORD or stdin
  logout                    revoke the stored session
  whoami                    show the signed-in administrator
  add -name N -age A [-country C] [-picture URL] [-description D]
  update <id> -name N -age A [-country C] [-picture URL] [-description D]
  delete <id>               remove a participant and their votes
`

var errNotSignedIn = errors.New("not signed in (run: fingervote admin login)")

func (a *app) admin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, adminUsage)
		return nil
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "login":
		return a.adminLogin(ctx, rest)
	case "logout":
		return a.adminLogout(ctx)
	case "whoami":
		return a.adminWhoami(ctx)
	case "add":
		return a.adminSave(ctx, "", rest)
	case "update":
		if len(rest) == 0 {
			return errors.New("update requires a participant id")
		}
		return a.adminSave(ctx, rest[0], rest[1:])
	case "delete", "rm":
		if len(rest) != 1 {
			return errors.New("delete requires exactly one participant id")
		}
		return a.adminDelete(ctx, rest[0])
	default:
		fmt.Fprint(a.out, adminUsage)
		return fmt.Errorf("unknown admin command %q", sub)
	}
}

func (a *app) adminLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("admin login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", os.Getenv("FINGERVOTE_ADMIN_EMAIL"), "Administrator email")
	password := fs.String("password", os.Getenv("FINGERVOTE_ADMIN_PASSWORD"), "Administrator password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	if *password == "" {
		fmt.Fprint(a.out, "Password: ")
		line, err := a.in.ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password given")
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	resp, err := a.backend.SignIn(ctx, *email, *password)
	if errors.Is(err, ledger.ErrUnauthorized) {
		return errors.New("invalid email or password")
	}
	if err != nil {
		return err
	}

	if err := a.ident.SetAdminToken(resp.AccessToken); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	fmt.Fprintf(a.out, "Signed in as %s (session expires %s)\n", resp.User.Email, humanize.Time(resp.ExpiresAt))
	return nil
}

func (a *app) adminLogout(ctx context.Context) error {
	token, ok := a.ident.AdminToken()
	if !ok {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}

	// A dead session is already signed out
	if err := a.backend.SignOut(ctx, token); err != nil && !errors.Is(err, ledger.ErrUnauthorized) {
		return err
	}
	if err := a.ident.ClearAdminToken(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func (a *app) adminWhoami(ctx context.Context) error {
	token, ok := a.ident.AdminToken()
	if !ok {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}

	sess, err := a.backend.Session(ctx, token)
	if err != nil {
		return err
	}
	if sess.User == nil {
		fmt.Fprintln(a.out, "Session expired. Sign in again.")
		return nil
	}

	fmt.Fprintf(a.out, "%s", sess.User.Email)
	if sess.ExpiresAt != nil {
		fmt.Fprintf(a.out, " (expires %s)", humanize.Time(*sess.ExpiresAt))
	}
	fmt.Fprintln(a.out)
	return nil
}

// adminSave creates a participant when id is empty, otherwise replaces it
func (a *app) adminSave(ctx context.Context, id string, args []string) error {
	token, ok := a.ident.AdminToken()
	if !ok {
		return errNotSignedIn
	}

	fs := flag.NewFlagSet("admin participant", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var req models.ParticipantRequest
	var description string
	fs.StringVar(&req.Name, "name", "", "Display name")
	fs.IntVar(&req.Age, "age", 0, "Age")
	fs.StringVar(&req.Country, "country", "", "Country")
	fs.StringVar(&req.PictureURL, "picture", "", "Picture URL")
	fs.StringVar(&description, "description", "", "Free-text description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if description != "" {
		req.Description = &description
	}

	var (
		p   models.Participant
		err error
	)
	if id == "" {
		p, err = a.backend.CreateParticipant(ctx, token, req)
	} else {
		p, err = a.backend.UpdateParticipant(ctx, token, id, req)
	}
	if err != nil {
		return adminError(err)
	}

	verb := "Added"
	if id != "" {
		verb = "Updated"
	}
	fmt.Fprintf(a.out, "%s %s (%s)\n", verb, p.Name, p.ID)
	return nil
}

func (a *app) adminDelete(ctx context.Context, id string) error {
	token, ok := a.ident.AdminToken()
	if !ok {
		return errNotSignedIn
	}
	if err := a.backend.DeleteParticipant(ctx, token, id); err != nil {
		return adminError(err)
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}

func adminError(err error) error {
	var se *ledger.StatusError
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return errNotSignedIn
	case errors.Is(err, ledger.ErrNotFound):
		return errors.New("no such participant")
	case errors.As(err, &se) && se.Message != "":
		return errors.New(se.Message)
	}
	return err
}
