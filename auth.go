package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/anycloud/internal/accountstore"
	"github.com/tonimelisma/anycloud/internal/authflow"
	"github.com/tonimelisma/anycloud/internal/cloud"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a provider in the browser",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke tokens and remove the stored account",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user",
		RunE:  runWhoami,
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if flagProvider == "" {
		return fmt.Errorf("login needs --provider (one of: %s)", providerList())
	}

	ctx := shutdownContext(context.Background(), a.logger)
	p := cloud.Provider(strings.ToLower(flagProvider))

	pcfg, err := a.cfg.ProviderConfig(p)
	if err != nil {
		return err
	}

	tokens, err := authflow.Login(ctx, pcfg, openBrowser, a.logger)
	if err != nil {
		return err
	}

	// Fetch the profile with the fresh token so the account record carries
	// the provider's user identity.
	adapter, err := cloud.New(p, pcfg, cloud.Options{
		HTTPClient: defaultHTTPClient(),
		Logger:     a.logger,
		Tokens:     tokens,
	})
	if err != nil {
		return err
	}

	user, err := adapter.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("fetching profile after login: %w", err)
	}

	saved, err := a.store.Save(ctx, &accountstore.Account{
		Provider: p,
		UserID:   user.ID,
		UserName: user.DisplayName,
		Email:    user.Email,
		Tokens:   *tokens,
	})
	if err != nil {
		return err
	}

	a.logger.Info("login successful",
		"provider", p, "account_id", saved.ID, "user", user.DisplayName)
	statusf("Logged in to %s as %s.\n", p, displayName(user))

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	adapter, acct, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	if err := adapter.Session().Logout(ctx); err != nil {
		return err
	}

	a.logger.Info("logout successful", "provider", acct.Provider, "account_id", acct.ID)
	statusf("Logged out of %s.\n", acct.Provider)

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Provider    string `json:"provider"`
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

func runWhoami(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	adapter, _, err := a.adapter(ctx)
	if err != nil {
		return err
	}

	user, err := adapter.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(whoamiOutput{
			Provider:    string(adapter.Provider()),
			ID:          user.ID,
			Name:        user.Name,
			DisplayName: user.DisplayName,
			Email:       user.Email,
		})
	}

	fmt.Fprintf(os.Stdout, "%s: %s", adapter.Provider(), displayName(user))

	if user.Email != "" {
		fmt.Fprintf(os.Stdout, " <%s>", user.Email)
	}

	fmt.Fprintln(os.Stdout)

	return nil
}

func displayName(u *cloud.User) string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}

func providerList() string {
	names := make([]string, 0, len(cloud.Providers()))
	for _, p := range cloud.Providers() {
		names = append(names, string(p))
	}

	return strings.Join(names, ", ")
}
