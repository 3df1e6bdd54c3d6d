package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"fieldmission/internal/autocomplete"
	"fieldmission/pkg/domain"
)

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "login")
	login := fs.String("login", "", "account login (default: last remembered user)")
	password := fs.String("password", "", "account password (default $FIELDMISSION_PASSWORD)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *login == "" {
		if remembered := a.prefs.RememberedUsers(ctx); len(remembered) > 0 {
			*login = remembered[0]
		}
	}
	if *password == "" {
		*password = os.Getenv("FIELDMISSION_PASSWORD")
	}
	if *login == "" || *password == "" {
		return fmt.Errorf("%w: login and password are required", errUsage)
	}
	sess, err := a.client.Login(ctx, *login, *password)
	if err != nil {
		return err
	}
	if err := a.prefs.Remember(ctx, *login); err != nil {
		a.logger.Warn("remember login", "error", err)
	}
	a.printf("logged in as %s %s (%s)\n", sess.User.FirstName, sess.User.LastName, sess.User.Login)
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "logout"), args); err != nil {
		return err
	}
	if err := a.client.Logout(ctx); err != nil && !errors.Is(err, domain.ErrNotAuthenticated) {
		a.printf("signed out locally; server logout failed: %v\n", err)
		return nil
	}
	a.printf("signed out\n")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "whoami"), args); err != nil {
		return err
	}
	sess, err := a.sessions.Require(ctx)
	if err != nil {
		return err
	}
	status := "valid"
	if a.sessions.Expired(ctx, time.Now()) {
		status = "expired"
	}
	u := sess.User
	a.printf("%s %s (%s)\nid: %s\nrole: %s\ncompany: %s\ntoken: %s\n",
		u.FirstName, u.LastName, u.Login, u.ID, u.Role, u.CompanyOwner, status)
	return nil
}

func cmdForms(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "forms")
	limit := fs.Int("limit", 10, "page size")
	page := fs.Int("page", 1, "page number")
	if err := parse(fs, args); err != nil {
		return err
	}
	forms, err := a.client.QueryForms(ctx, *limit, *page)
	if err != nil {
		return err
	}
	for _, f := range forms {
		a.printf("%s\t%s\n", f.ID, f.Title)
	}
	return nil
}

func cmdSearch(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "search")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: search <asset|driver|container> [term]", errUsage)
	}
	term := strings.Join(fs.Args()[1:], " ")
	s := a.client.Searchers()
	switch fs.Arg(0) {
	case "asset", "assets":
		return runSearch(ctx, a, "asset", s.Assets, term, func(x domain.Asset) string {
			return joinNonEmpty(x.Name, x.LicensePlate, x.Type)
		})
	case "driver", "drivers":
		return runSearch(ctx, a, "driver", s.Drivers, term, func(x domain.Driver) string {
			return joinNonEmpty(x.Label(), x.Phone)
		})
	case "container", "containers", "bac":
		return runSearch(ctx, a, "container", s.Containers, term, func(x domain.Container) string {
			return joinNonEmpty(x.Name, x.Location)
		})
	default:
		return fmt.Errorf("%w: unknown entity %q", errUsage, fs.Arg(0))
	}
}

// runSearch drives a selector engine the way a form field would: open it, or
// type the term, and wait for the settled result.
func runSearch[T domain.Entity](ctx context.Context, a *app, name string, fetch autocomplete.Fetcher[T], term string, describe func(T) string) error {
	if _, err := a.sessions.Require(ctx); err != nil {
		return err
	}
	engine := autocomplete.New(autocomplete.Config[T]{
		Fetch:        fetch,
		Debounce:     a.cfg.SearchDebounce,
		FetchTimeout: a.cfg.RequestTimeout,
		Logger:       a.logger,
		Name:         name,
	})
	defer engine.Shutdown()
	if term == "" {
		engine.Open()
	} else {
		engine.Type(term)
	}
	engine.Wait()
	st := engine.State()
	if st.Err != "" {
		return errors.New(st.Err)
	}
	if len(st.Results) == 0 {
		a.printf("no %s found\n", name)
		return nil
	}
	for _, item := range st.Results {
		a.printf("%s\t%s\n", item.EntityID(), describe(item))
	}
	return nil
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\t")
}

func cmdPrefs(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		a.printf("language: %s\nonboarding completed: %t\nremembered users: %s\n",
			a.prefs.Language(ctx), a.prefs.OnboardingCompleted(ctx), strings.Join(a.prefs.RememberedUsers(ctx), ", "))
		return nil
	}
	switch args[0] {
	case "language":
		if len(args) == 1 {
			a.printf("%s\n", a.prefs.Language(ctx))
			return nil
		}
		return a.prefs.SetLanguage(ctx, args[1])
	case "onboarding":
		if len(args) == 1 {
			a.printf("%t\n", a.prefs.OnboardingCompleted(ctx))
			return nil
		}
		switch args[1] {
		case "done":
			return a.prefs.CompleteOnboarding(ctx)
		case "reset":
			return a.prefs.ResetOnboarding(ctx)
		}
		return fmt.Errorf("%w: prefs onboarding [done|reset]", errUsage)
	case "forget":
		if len(args) != 2 {
			return fmt.Errorf("%w: prefs forget <login>", errUsage)
		}
		return a.prefs.Forget(ctx, args[1])
	default:
		return fmt.Errorf("%w: prefs [language [code]|onboarding [done|reset]|forget <login>]", errUsage)
	}
}
