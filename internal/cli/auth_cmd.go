// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
)

// WhoamiData is whoami --json.
type WhoamiData struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Guest  bool   `json:"guest"`
	Server string `json:"server"`
}

// HandleLogin signs in locally with an email. The account is a generated
// guest id; history from then on is kept under it.
func HandleLogin(app *App, rest []string) error {
	p := NewArgParser(rest)
	email := strings.TrimSpace(p.Subcommand())
	if email == "" {
		return usageError("hypve login <email>")
	}
	id, err := app.Session.LoginGuest(email)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "%s as %s %s\n", successColor.Sprint("signed in"), email, dimColor.Sprintf("(%s)", id))
	return nil
}

// HandleLogout forgets the user and returns to guest history.
func HandleLogout(app *App) error {
	if app.Session.IsGuest() {
		fmt.Fprintln(app.Out, dimColor.Sprint("not signed in"))
		return nil
	}
	if err := app.Session.Logout(); err != nil {
		return NewCommandError("logout", "clear user", err)
	}
	fmt.Fprintln(app.Out, successColor.Sprint("signed out"))
	return nil
}

// HandleWhoami shows the current user as resolved at startup.
func HandleWhoami(app *App) error {
	s := app.Session
	data := WhoamiData{
		UserID: s.UserID(),
		Email:  s.Email(),
		Guest:  s.IsGuest(),
		Server: app.Client.BaseURL(),
	}
	if app.JSON {
		return NewJSONResponse("whoami", data).Fprint(app.Out)
	}

	if data.Guest {
		fmt.Fprintf(app.Out, "%s %s\n", labelColor.Sprint("user:"), "guest")
	} else {
		fmt.Fprintf(app.Out, "%s %s\n", labelColor.Sprint("user:"), data.UserID)
		if data.Email != "" {
			fmt.Fprintf(app.Out, "%s %s\n", labelColor.Sprint("email:"), data.Email)
		}
	}
	fmt.Fprintf(app.Out, "%s %s\n", labelColor.Sprint("server:"), data.Server)
	return nil
}

// HandleAuth prints the browser sign-in URL for a provider. The server
// completes sign-in and sets its session; the next start picks it up.
func HandleAuth(app *App, rest []string) error {
	p := NewArgParser(rest)
	provider := p.Subcommand()
	if provider == "" {
		return usageError("hypve auth google|github")
	}
	u, err := app.Client.AuthURL(provider)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.Out, "Open this URL in a browser to sign in:")
	fmt.Fprintln(app.Out, titleColor.Sprint(u))
	return nil
}
