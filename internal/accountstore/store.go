// Package accountstore persists logged-in accounts and their tokens in an
// embedded SQLite database. One row per (provider, user) pair; sessions write
// refreshed tokens back through the cloud.AccountStore interface.
package accountstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/anycloud/internal/cloud"
)

// 64 MiB WAL journal size limit.
const walJournalSizeLimit = 67108864

// Account is one logged-in identity at one provider. ID is a locally
// generated UUID; UserID is the provider's identifier for the user.
type Account struct {
	ID       string
	Provider cloud.Provider
	UserID   string
	UserName string
	Email    string
	Tokens   cloud.TokenSet

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store implements cloud.AccountStore on SQLite with WAL mode.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stmts accountStatements
}

var _ cloud.AccountStore = (*Store)(nil)

type accountStatements struct {
	upsert, updateTokens, getByID, getByUser, list, listByProvider, deleteByID *sql.Stmt
}

const (
	sqlColumns = `id, provider, user_id, user_name, email,
		access_token, refresh_token, expiry, created_at, updated_at`

	sqlUpsertAccount = `
		INSERT INTO accounts (id, provider, user_id, user_name, email,
			access_token, refresh_token, expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, user_id) DO UPDATE SET
			user_name = excluded.user_name,
			email = excluded.email,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at`

	sqlUpdateTokens = `
		UPDATE accounts
		SET access_token = ?, refresh_token = ?, expiry = ?, updated_at = ?
		WHERE id = ? AND provider = ?`

	sqlGetAccountByID = `
		SELECT ` + sqlColumns + ` FROM accounts WHERE id = ?`

	sqlGetAccountByUser = `
		SELECT ` + sqlColumns + ` FROM accounts WHERE provider = ? AND user_id = ?`

	sqlListAccounts = `
		SELECT ` + sqlColumns + ` FROM accounts ORDER BY provider, user_name, user_id`

	sqlListAccountsByProvider = `
		SELECT ` + sqlColumns + ` FROM accounts WHERE provider = ?
		ORDER BY user_name, user_id`

	sqlDeleteAccount = `
		DELETE FROM accounts WHERE id = ? AND provider = ?`
)

// New opens the database at dbPath, applies migrations, and prepares the
// repeated statements. Use ":memory:" for tests.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening account database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// stmtDef maps a SQL string to the prepared statement pointer it should populate.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func (s *Store) prepareStatements(ctx context.Context) error {
	defs := []stmtDef{
		{&s.stmts.upsert, sqlUpsertAccount, "upsertAccount"},
		{&s.stmts.updateTokens, sqlUpdateTokens, "updateTokens"},
		{&s.stmts.getByID, sqlGetAccountByID, "getAccountByID"},
		{&s.stmts.getByUser, sqlGetAccountByUser, "getAccountByUser"},
		{&s.stmts.list, sqlListAccounts, "listAccounts"},
		{&s.stmts.listByProvider, sqlListAccountsByProvider, "listAccountsByProvider"},
		{&s.stmts.deleteByID, sqlDeleteAccount, "deleteAccount"},
	}

	for i := range defs {
		stmt, err := s.db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

// Save inserts the account or, when a row for the same (provider, user)
// already exists, updates it in place keeping the original ID. The stored
// record is returned.
func (s *Store) Save(ctx context.Context, account *Account) (*Account, error) {
	if account.Provider == "" || account.UserID == "" {
		return nil, errors.New("save account: provider and user ID are required")
	}

	id := account.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()

	_, err := s.stmts.upsert.ExecContext(ctx,
		id, string(account.Provider), account.UserID, account.UserName, account.Email,
		account.Tokens.AccessToken, account.Tokens.RefreshToken, timeToNano(account.Tokens.Expiry),
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("save account %s/%s: %w", account.Provider, account.UserID, err)
	}

	stored, err := s.Find(ctx, account.Provider, account.UserID)
	if err != nil {
		return nil, err
	}

	if stored == nil {
		return nil, fmt.Errorf("save account %s/%s: row not found after upsert", account.Provider, account.UserID)
	}

	s.logger.Debug("account saved", "provider", account.Provider, "account_id", stored.ID)

	return stored, nil
}

// Get returns the account with the given ID, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*Account, error) {
	account, err := scanAccount(s.stmts.getByID.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}

	return account, nil
}

// Find returns the account for a provider's user, or (nil, nil) when absent.
func (s *Store) Find(ctx context.Context, provider cloud.Provider, userID string) (*Account, error) {
	account, err := scanAccount(s.stmts.getByUser.QueryRowContext(ctx, string(provider), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("find account %s/%s: %w", provider, userID, err)
	}

	return account, nil
}

// List returns every stored account ordered by provider then user.
func (s *Store) List(ctx context.Context) ([]*Account, error) {
	rows, err := s.stmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	return collectAccounts(rows)
}

// ListByProvider returns the stored accounts for one provider.
func (s *Store) ListByProvider(ctx context.Context, provider cloud.Provider) ([]*Account, error) {
	rows, err := s.stmts.listByProvider.QueryContext(ctx, string(provider))
	if err != nil {
		return nil, fmt.Errorf("list accounts for %s: %w", provider, err)
	}

	return collectAccounts(rows)
}

// SaveTokens replaces the stored TokenSet for an account. Called by the
// session after every successful refresh.
func (s *Store) SaveTokens(ctx context.Context, provider cloud.Provider, accountID string, tokens *cloud.TokenSet) error {
	res, err := s.stmts.updateTokens.ExecContext(ctx,
		tokens.AccessToken, tokens.RefreshToken, timeToNano(tokens.Expiry),
		time.Now().UnixNano(), accountID, string(provider))
	if err != nil {
		return fmt.Errorf("save tokens for %s/%s: %w", provider, accountID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save tokens for %s/%s: %w", provider, accountID, err)
	}

	if affected == 0 {
		return fmt.Errorf("save tokens for %s/%s: account not found", provider, accountID)
	}

	s.logger.Debug("tokens saved", "provider", provider, "account_id", accountID)

	return nil
}

// DeleteAccount removes the local record. Deleting an unknown account is not
// an error so that logout stays idempotent.
func (s *Store) DeleteAccount(ctx context.Context, provider cloud.Provider, accountID string) error {
	if _, err := s.stmts.deleteByID.ExecContext(ctx, accountID, string(provider)); err != nil {
		return fmt.Errorf("delete account %s/%s: %w", provider, accountID, err)
	}

	s.logger.Debug("account deleted", "provider", provider, "account_id", accountID)

	return nil
}

// Close closes all prepared statements and the database.
func (s *Store) Close() error {
	s.logger.Info("closing account database")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

// closeStatements closes all prepared statements, collecting errors.
func (s *Store) closeStatements() error {
	stmts := []*sql.Stmt{
		s.stmts.upsert, s.stmts.updateTokens, s.stmts.getByID, s.stmts.getByUser,
		s.stmts.list, s.stmts.listByProvider, s.stmts.deleteByID,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a        Account
		provider string
		expiry   int64
		created  int64
		updated  int64
	)

	err := row.Scan(&a.ID, &provider, &a.UserID, &a.UserName, &a.Email,
		&a.Tokens.AccessToken, &a.Tokens.RefreshToken, &expiry, &created, &updated)
	if err != nil {
		return nil, err
	}

	a.Provider = cloud.Provider(provider)
	a.Tokens.Expiry = nanoToTime(expiry)
	a.CreatedAt = nanoToTime(created)
	a.UpdatedAt = nanoToTime(updated)

	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]*Account, error) {
	defer rows.Close()

	var accounts []*Account

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// timeToNano stores a zero time as 0 so that "never expires" survives the
// round trip.
func timeToNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func nanoToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n)
}
