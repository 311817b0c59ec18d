package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tonimelisma/anycloud/internal/accountstore"
	"github.com/tonimelisma/anycloud/internal/cloud"
	"github.com/tonimelisma/anycloud/internal/config"
	"github.com/tonimelisma/anycloud/internal/provider"
)

// accountDBName is the SQLite file holding logged-in accounts.
const accountDBName = "accounts.db"

// app bundles the collaborators every command needs: the loaded config, the
// account store and the logger. Built per command invocation, closed after.
type app struct {
	cfg    *config.Config
	store  *accountstore.Store
	logger *slog.Logger
}

// newApp loads config, opens the account database and registers the
// provider factories.
func newApp() (*app, error) {
	provider.RegisterAll()

	cfgPath := flagConfigPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cfg)

	dataDir := cfg.ResolveDataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	store, err := accountstore.New(filepath.Join(dataDir, accountDBName), logger)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, store: store, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing account store", "error", err)
	}
}

// requireProvider resolves the --provider flag, or infers the provider when
// exactly one account is logged in.
func (a *app) requireProvider(ctx context.Context) (cloud.Provider, error) {
	if flagProvider != "" {
		p := cloud.Provider(strings.ToLower(flagProvider))
		if _, err := a.cfg.ProviderConfig(p); err != nil {
			return "", err
		}

		return p, nil
	}

	accounts, err := a.store.List(ctx)
	if err != nil {
		return "", err
	}

	switch len(accounts) {
	case 0:
		return "", fmt.Errorf("no accounts; run anycloud login --provider <name>")
	case 1:
		return accounts[0].Provider, nil
	default:
		return "", fmt.Errorf("multiple accounts; pick one with --provider")
	}
}

// selectAccount finds the account to operate on: the --account selector
// when given (matched against ID, user ID, user name and email), otherwise
// the provider's sole account.
func (a *app) selectAccount(ctx context.Context, p cloud.Provider) (*accountstore.Account, error) {
	accounts, err := a.store.ListByProvider(ctx, p)
	if err != nil {
		return nil, err
	}

	if flagAccount == "" {
		switch len(accounts) {
		case 0:
			return nil, fmt.Errorf("not logged in to %s; run anycloud login --provider %s", p, p)
		case 1:
			return accounts[0], nil
		default:
			return nil, fmt.Errorf("multiple %s accounts; pick one with --account", p)
		}
	}

	for _, acct := range accounts {
		if acct.ID == flagAccount || acct.UserID == flagAccount ||
			acct.UserName == flagAccount || acct.Email == flagAccount {
			return acct, nil
		}
	}

	return nil, fmt.Errorf("no %s account matches %q", p, flagAccount)
}

// adapter builds a ready adapter bound to the selected account's tokens.
// Refreshed tokens are written back to the account store by the session.
func (a *app) adapter(ctx context.Context) (cloud.Adapter, *accountstore.Account, error) {
	p, err := a.requireProvider(ctx)
	if err != nil {
		return nil, nil, err
	}

	acct, err := a.selectAccount(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	pcfg, err := a.cfg.ProviderConfig(p)
	if err != nil {
		return nil, nil, err
	}

	tokens := acct.Tokens

	adapter, err := cloud.New(p, pcfg, cloud.Options{
		HTTPClient: defaultHTTPClient(),
		Logger:     a.logger,
		Store:      a.store,
		AccountID:  acct.ID,
		Tokens:     &tokens,
	})
	if err != nil {
		return nil, nil, err
	}

	// Validate the stored token up front, refreshing through the session's
	// single-flight path when the provider has rejected it. Expired tokens
	// self-heal here instead of failing the first data operation.
	if err := adapter.Session().Prepare(ctx); err != nil {
		return nil, nil, err
	}

	return adapter, acct, nil
}
