// SPDX-License-Identifier: MIT

package appdata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jdswan/sonicat/internal/persistence/sqlite"
)

// Ledger reads the completion and failure ledgers of one worker app from
// its exported replica. Every store carries the same ledger pair, so one
// reader serves them all; stores without a failure ledger simply lack the
// table and report no failures.
type Ledger struct {
	db        *sql.DB
	app       string
	hasFailed bool
}

// OpenLedger opens a store replica read-only for ledger consumption.
func OpenLedger(app, replicaPath string) (*Ledger, error) {
	db, err := sqlite.OpenReadOnly(replicaPath)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: ledger: %w", app, err)
	}
	var name string
	err = db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'failedsearch';").Scan(&name)
	hasFailed := err == nil
	return &Ledger{db: db, app: app, hasFailed: hasFailed}, nil
}

// App names the worker this ledger belongs to.
func (l *Ledger) App() string {
	return l.app
}

// Close releases the replica handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Completed lists the asset ids the app has finished for a catalog.
func (l *Ledger) Completed(ctx context.Context, catalog string) ([]int64, error) {
	ids, err := selectAssets(ctx, l.db,
		"SELECT asset FROM log WHERE catalog = ? ORDER BY asset ASC;", catalog)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: ledger completed: %w", l.app, err)
	}
	return ids, nil
}

// Failed lists the asset ids recorded as failed searches.
func (l *Ledger) Failed(ctx context.Context, catalog string) ([]int64, error) {
	if !l.hasFailed {
		return nil, nil
	}
	ids, err := selectAssets(ctx, l.db,
		"SELECT asset FROM failedsearch WHERE catalog = ? ORDER BY asset ASC;", catalog)
	if err != nil {
		return nil, fmt.Errorf("appdata %s: ledger failed: %w", l.app, err)
	}
	return ids, nil
}
