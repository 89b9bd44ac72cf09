// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

var tokensSchema = []string{
	`CREATE TABLE IF NOT EXISTS token (
		id INTEGER PRIMARY KEY,
		value TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS filepathtokens (
		id INTEGER PRIMARY KEY,
		token INTEGER NOT NULL,
		file INTEGER NOT NULL,
		catalog TEXT,
		FOREIGN KEY (token) REFERENCES token (id)
	);`,
	`CREATE TABLE IF NOT EXISTS data (
		id INTEGER PRIMARY KEY,
		file INTEGER NOT NULL,
		catalog TEXT NOT NULL,
		bpm INTEGER,
		key TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_fpt_file ON filepathtokens (catalog, file);`,
	`CREATE INDEX IF NOT EXISTS idx_fpt_token ON filepathtokens (catalog, token);`,
}

// TokensStore persists path parses: the token vocabulary, per-file token
// occurrences, and the split-off tempo and key per file.
type TokensStore struct {
	base

	mu       sync.Mutex
	tokenIDs map[string]int64
}

// OpenTokens opens (creating when absent) the live tokens store and warms
// the token-id cache from the existing vocabulary.
func OpenTokens(dbPath string) (*TokensStore, error) {
	b, err := openBase(config.AppPathParser, dbPath, tokensSchema, false)
	if err != nil {
		return nil, err
	}
	s := &TokensStore{base: b, tokenIDs: make(map[string]int64)}
	if err := s.warmTokenCache(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *TokensStore) warmTokenCache() error {
	rows, err := s.db.Query("SELECT id, value FROM token;")
	if err != nil {
		return fmt.Errorf("appdata %s: warm token cache: %w", s.app, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			value string
		)
		if err := rows.Scan(&id, &value); err != nil {
			return fmt.Errorf("appdata %s: warm token cache: %w", s.app, err)
		}
		s.tokenIDs[value] = id
	}
	return rows.Err()
}

// RecordParse commits one asset's file parses in a single ledger-gated
// transaction: a data row per file plus one filepathtokens row per token
// occurrence. Returns false when the asset was already recorded.
func (s *TokensStore) RecordParse(ctx context.Context, catalog string, assetID int64, parses []task.FileParse) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("appdata %s: begin: %w", s.app, err)
	}
	defer func() { _ = tx.Rollback() }()

	fresh, err := logAssetTx(ctx, tx, catalog, assetID)
	if err != nil {
		return false, fmt.Errorf("appdata %s: %w", s.app, err)
	}
	if !fresh {
		return false, nil
	}

	// Token ids resolved inside the transaction are staged and only made
	// visible to the cache after commit.
	staged := make(map[string]int64)
	for _, p := range parses {
		if err := insertParseTx(ctx, tx, catalog, p); err != nil {
			return false, fmt.Errorf("appdata %s: %w", s.app, err)
		}
		for _, tok := range p.Tokens {
			id, err := s.tokenIDTx(ctx, tx, staged, tok)
			if err != nil {
				return false, fmt.Errorf("appdata %s: %w", s.app, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO filepathtokens (token, file, catalog) VALUES (?,?,?);",
				id, p.FileID, catalog); err != nil {
				return false, fmt.Errorf("appdata %s: file token: %w", s.app, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("appdata %s: commit: %w", s.app, err)
	}
	s.mu.Lock()
	for value, id := range staged {
		s.tokenIDs[value] = id
	}
	s.mu.Unlock()

	s.logger.Info().
		Str(log.FieldEvent, "appdata.parse_recorded").
		Str(log.FieldCatalog, catalog).
		Int64(log.FieldAssetID, assetID).
		Int("files", len(parses)).
		Msg("path parse recorded")
	return true, nil
}

func insertParseTx(ctx context.Context, tx *sql.Tx, catalog string, p task.FileParse) error {
	var (
		bpm sql.NullString
		key sql.NullString
	)
	if p.Tempo != "" {
		bpm = sql.NullString{String: p.Tempo, Valid: true}
	}
	if p.Key != "" {
		key = sql.NullString{String: p.Key, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO data (file, catalog, bpm, key) VALUES (?,?,?,?);",
		p.FileID, catalog, bpm, key)
	if err != nil {
		return fmt.Errorf("parse data: %w", err)
	}
	return nil
}

func (s *TokensStore) tokenIDTx(ctx context.Context, tx *sql.Tx, staged map[string]int64, value string) (int64, error) {
	if id, ok := staged[value]; ok {
		return id, nil
	}
	s.mu.Lock()
	id, ok := s.tokenIDs[value]
	s.mu.Unlock()
	if ok {
		return id, nil
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO token (value) VALUES (?);", value); err != nil {
		return 0, fmt.Errorf("token %q: %w", value, err)
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM token WHERE value = ?;", value).Scan(&id); err != nil {
		return 0, fmt.Errorf("token %q: %w", value, err)
	}
	staged[value] = id
	return id, nil
}

// TokenID resolves a token value, or 0 when the vocabulary lacks it.
func (s *TokensStore) TokenID(ctx context.Context, value string) (int64, error) {
	s.mu.Lock()
	if id, ok := s.tokenIDs[value]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM token WHERE value = ?;", value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("appdata %s: token id: %w", s.app, err)
	}
	return id, nil
}

// TokensByFile lists the distinct token values recorded for a file.
func (s *TokensStore) TokensByFile(ctx context.Context, catalog string, fileID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT t.value FROM filepathtokens f
		 JOIN token t ON t.id = f.token
		 WHERE f.catalog = ? AND f.file = ?
		 ORDER BY t.value ASC;`, catalog, fileID)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: tokens by file: %w", s.app, err)
	}
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("appdata %s: tokens by file: %w", s.app, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// FileParse returns the tempo and key recorded for a file, empty when the
// parse found none.
func (s *TokensStore) FileParse(ctx context.Context, catalog string, fileID int64) (tempo, key string, err error) {
	var bpm, k sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT bpm, key FROM data WHERE catalog = ? AND file = ?;",
		catalog, fileID).Scan(&bpm, &k)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("appdata %s: file parse: %w", s.app, err)
	}
	return bpm.String, k.String, nil
}

// TokenCount counts token occurrences in a catalog.
func (s *TokensStore) TokenCount(ctx context.Context, catalog string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(id) FROM filepathtokens WHERE catalog = ?;", catalog).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appdata %s: token count: %w", s.app, err)
	}
	return n, nil
}
