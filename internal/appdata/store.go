// SPDX-License-Identifier: MIT

// Package appdata holds the derived-data stores, one per worker app, and
// the write funnel that commits completed task results into them.
//
// Every store carries the same ledger pair: a `log` table recording which
// (catalog, asset) pairs the app has completed, and — on stores whose
// worker can search and miss — a `failedsearch` table. Both are UNIQUE on
// (catalog, asset) and written with INSERT OR IGNORE inside the same
// transaction as the payload, so a redelivered task commits exactly once
// no matter how often the queue replays it.
package appdata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/metrics"
	"github.com/jdswan/sonicat/internal/persistence/sqlite"
)

// Store is the uniform surface a derived-data store exposes to the
// scheduler and the operator layer.
type Store interface {
	App() string
	Completed(ctx context.Context, catalog string) ([]int64, error)
	Failed(ctx context.Context, catalog string) ([]int64, error)
	ExportReplica() error
	Close() error
}

const (
	logSchema = `CREATE TABLE IF NOT EXISTS log (
		id INTEGER PRIMARY KEY,
		asset INTEGER NOT NULL,
		catalog TEXT NOT NULL,
		UNIQUE (catalog, asset)
	);`
	failedSchema = `CREATE TABLE IF NOT EXISTS failedsearch (
		id INTEGER PRIMARY KEY,
		catalog TEXT NOT NULL,
		asset INTEGER NOT NULL,
		UNIQUE (catalog, asset)
	);`
)

// base carries the plumbing shared by every concrete store.
type base struct {
	db           *sql.DB
	app          string
	path         string
	failedLedger bool
	logger       zerolog.Logger
}

func openBase(app, dbPath string, schema []string, failedLedger bool) (base, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return base{}, fmt.Errorf("appdata %s: %w", app, err)
	}
	stmts := append([]string{logSchema}, schema...)
	if failedLedger {
		stmts = append(stmts, failedSchema)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return base{}, fmt.Errorf("appdata %s: apply schema: %w", app, err)
		}
	}
	return base{
		db:           db,
		app:          app,
		path:         dbPath,
		failedLedger: failedLedger,
		logger:       log.WithComponent("appdata." + app),
	}, nil
}

// App names the worker this store belongs to.
func (b *base) App() string {
	return b.app
}

// Close releases the underlying handle.
func (b *base) Close() error {
	return b.db.Close()
}

// Completed lists the asset ids the app has finished for a catalog.
func (b *base) Completed(ctx context.Context, catalog string) ([]int64, error) {
	ids, err := selectAssets(ctx, b.db, "SELECT asset FROM log WHERE catalog = ? ORDER BY asset ASC;", catalog)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: completed: %w", b.app, err)
	}
	metrics.SetLedgerRows(b.app, catalog, "log", len(ids))
	return ids, nil
}

// Failed lists the asset ids recorded as failed searches. Stores without a
// failure ledger always report none.
func (b *base) Failed(ctx context.Context, catalog string) ([]int64, error) {
	if !b.failedLedger {
		return nil, nil
	}
	ids, err := selectAssets(ctx, b.db, "SELECT asset FROM failedsearch WHERE catalog = ? ORDER BY asset ASC;", catalog)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: failed: %w", b.app, err)
	}
	metrics.SetLedgerRows(b.app, catalog, "failedsearch", len(ids))
	return ids, nil
}

// RecordFailedSearch marks an asset so the scheduler stops re-emitting it
// until the entry is purged.
func (b *base) RecordFailedSearch(ctx context.Context, catalog string, assetID int64) error {
	if !b.failedLedger {
		return fmt.Errorf("appdata %s: store has no failure ledger", b.app)
	}
	_, err := b.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO failedsearch (catalog, asset) VALUES (?, ?);", catalog, assetID)
	if err != nil {
		return fmt.Errorf("appdata %s: record failed search: %w", b.app, err)
	}
	b.logger.Info().
		Str(log.FieldEvent, "appdata.failed_search").
		Str(log.FieldCatalog, catalog).
		Int64(log.FieldAssetID, assetID).
		Msg("failed search recorded")
	return nil
}

// PurgeFailed deletes failure-ledger rows so the scheduler retries the
// assets. With no ids given, the whole catalog's ledger is cleared. Returns
// the number of rows removed.
func (b *base) PurgeFailed(ctx context.Context, catalog string, assetIDs []int64) (int64, error) {
	if !b.failedLedger {
		return 0, nil
	}
	var (
		res sql.Result
		err error
	)
	if len(assetIDs) == 0 {
		res, err = b.db.ExecContext(ctx, "DELETE FROM failedsearch WHERE catalog = ?;", catalog)
	} else {
		query := "DELETE FROM failedsearch WHERE catalog = ? AND asset IN (?" +
			repeatArg(len(assetIDs)-1) + ");"
		args := make([]any, 0, len(assetIDs)+1)
		args = append(args, catalog)
		for _, id := range assetIDs {
			args = append(args, id)
		}
		res, err = b.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return 0, fmt.Errorf("appdata %s: purge failed searches: %w", b.app, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ExportReplica snapshots the live store beside itself for replica readers.
func (b *base) ExportReplica() error {
	replica := config.ReplicaPath(b.path)
	if err := sqlite.ExportReplica(b.db, replica); err != nil {
		return fmt.Errorf("appdata %s: %w", b.app, err)
	}
	b.logger.Debug().
		Str(log.FieldEvent, "appdata.replica_exported").
		Str(log.FieldReplica, replica).
		Msg("replica exported")
	return nil
}

// logAssetTx writes the completion-ledger row inside the payload
// transaction. A false return means the asset was already logged and the
// caller must skip the payload writes.
func logAssetTx(ctx context.Context, tx *sql.Tx, catalog string, assetID int64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO log (catalog, asset) VALUES (?, ?);", catalog, assetID)
	if err != nil {
		return false, fmt.Errorf("ledger insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger insert: %w", err)
	}
	return n > 0, nil
}

// ensureNameTx resolves a name row id in a lookup table (tag, format),
// inserting it when missing. Table names are store constants, never input.
func ensureNameTx(ctx context.Context, tx *sql.Tx, table, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+table+" (name) VALUES (?);", name); err != nil {
		return 0, fmt.Errorf("ensure %s %q: %w", table, name, err)
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM "+table+" WHERE name = ?;", name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure %s %q: %w", table, name, err)
	}
	return id, nil
}

func selectAssets(ctx context.Context, db *sql.DB, query string, catalog string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, catalog)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func repeatArg(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ",?"
	}
	return out
}
