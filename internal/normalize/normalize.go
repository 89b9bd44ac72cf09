// SPDX-License-Identifier: MIT

// Package normalize tidies the managed archive trees: loose canonical
// archives are sorted into their label directories, and divergent label
// spellings within one label directory are homogenized to the majority
// spelling. Planning is read-only; Apply performs the renames and keeps the
// catalog rows in step.
package normalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/names"
)

// Rename is one planned archive path change. Cname fields are empty for a
// pure move (sorting a loose archive), set when the asset is respelled.
type Rename struct {
	Catalog  string
	From     string
	To       string
	OldCname string
	NewCname string
}

// Respell is one label directory's spelling decision.
type Respell struct {
	Catalog  string
	LabelDir string
	Majority string
	Variants map[string]int
}

// Report is the outcome of a planning pass.
type Report struct {
	Moves    []Rename
	Respells []Respell
	Renames  []Rename
}

// Empty reports whether the plan has nothing to do.
func (r *Report) Empty() bool {
	return len(r.Moves) == 0 && len(r.Renames) == 0
}

// Normalizer plans and applies managed-tree cleanups.
type Normalizer struct {
	cfg    *config.AppConfig
	logger zerolog.Logger
}

// New builds a normalizer over every configured catalog.
func New(cfg *config.AppConfig) *Normalizer {
	return &Normalizer{cfg: cfg, logger: log.WithComponent("normalize")}
}

// Plan walks the managed trees without touching anything.
func (n *Normalizer) Plan(ctx context.Context) (*Report, error) {
	report := &Report{}
	for _, catalogName := range n.cfg.CatalogNames() {
		managed := n.cfg.Catalogs[catalogName].Path.Managed
		if managed == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := n.planLoose(catalogName, managed, report); err != nil {
			return nil, err
		}
		if err := n.planSpellings(catalogName, managed, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// planLoose finds canonical archives sitting at the managed root instead of
// inside their label directory.
func (n *Normalizer) planLoose(catalogName, managed string, report *Report) error {
	loose, err := filepath.Glob(filepath.Join(managed, "*.rar"))
	if err != nil {
		return fmt.Errorf("normalize: scan %s: %w", managed, err)
	}
	for _, archive := range loose {
		cname := strings.TrimSuffix(filepath.Base(archive), ".rar")
		if !names.IsCanonical(cname) {
			n.logger.Warn().
				Str(log.FieldEvent, "normalize.loose_skipped").
				Str(log.FieldPath, archive).
				Msg("loose archive without a canonical name")
			continue
		}
		report.Moves = append(report.Moves, Rename{
			Catalog: catalogName,
			From:    archive,
			To:      filepath.Join(managed, names.LabelDirFromCname(cname), cname+".rar"),
		})
	}
	return nil
}

// planSpellings decides the majority label spelling per label directory and
// plans a rename for every archive off the majority. Ties break to the
// alphabetically first spelling so repeated runs agree.
func (n *Normalizer) planSpellings(catalogName, managed string, report *Report) error {
	dirents, err := os.ReadDir(managed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("normalize: read %s: %w", managed, err)
	}
	for _, dirent := range dirents {
		if !dirent.IsDir() {
			continue
		}
		labelDir := dirent.Name()
		archives, err := filepath.Glob(filepath.Join(managed, labelDir, "*.rar"))
		if err != nil {
			return fmt.Errorf("normalize: scan %s: %w", labelDir, err)
		}
		variants := map[string]int{}
		for _, archive := range archives {
			cname := strings.TrimSuffix(filepath.Base(archive), ".rar")
			if !names.IsCanonical(cname) {
				continue
			}
			label, _, _ := names.Divide(cname)
			variants[label]++
		}
		if len(variants) < 2 {
			continue
		}
		majority := majoritySpelling(variants)
		report.Respells = append(report.Respells, Respell{
			Catalog:  catalogName,
			LabelDir: labelDir,
			Majority: majority,
			Variants: variants,
		})
		for _, archive := range archives {
			cname := strings.TrimSuffix(filepath.Base(archive), ".rar")
			if !names.IsCanonical(cname) {
				continue
			}
			label, title, note := names.Divide(cname)
			if label == majority {
				continue
			}
			renamed := names.Join(majority, title, note)
			report.Renames = append(report.Renames, Rename{
				Catalog:  catalogName,
				From:     archive,
				To:       filepath.Join(managed, labelDir, renamed+".rar"),
				OldCname: cname,
				NewCname: renamed,
			})
		}
	}
	return nil
}

// Apply performs the planned renames and updates the catalog rows of
// respelled assets. Loose-archive moves leave the catalog untouched.
func (n *Normalizer) Apply(ctx context.Context, report *Report) error {
	for _, move := range report.Moves {
		if err := renameArchive(move); err != nil {
			return err
		}
		n.logger.Info().
			Str(log.FieldEvent, "normalize.sorted").
			Str(log.FieldPath, move.To).
			Msg("loose archive sorted")
	}
	byCatalog := map[string][]Rename{}
	for _, rename := range report.Renames {
		byCatalog[rename.Catalog] = append(byCatalog[rename.Catalog], rename)
	}
	for _, catalogName := range sortedKeys(byCatalog) {
		if err := n.applyRenames(ctx, catalogName, byCatalog[catalogName]); err != nil {
			return err
		}
	}
	return nil
}

func (n *Normalizer) applyRenames(ctx context.Context, catalogName string, renames []Rename) error {
	store, err := catalog.Open(n.cfg.CatalogDBPath(catalogName))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	for _, rename := range renames {
		if err := renameArchive(rename); err != nil {
			return err
		}
		assetID, err := store.AssetID(ctx, rename.OldCname)
		if err != nil {
			// Archive without a catalog row: the filesystem rename stands.
			n.logger.Warn().Err(err).
				Str(log.FieldEvent, "normalize.uncataloged").
				Str(log.FieldCname, rename.OldCname).
				Msg("respelled archive has no catalog row")
			continue
		}
		label, _, _ := names.Divide(rename.NewCname)
		labelID, err := store.EnsureLabel(ctx, label, names.LabelDir(label))
		if err != nil {
			return err
		}
		if err := store.UpdateAssetName(ctx, assetID, rename.NewCname); err != nil {
			return err
		}
		if err := store.UpdateAssetLabel(ctx, assetID, labelID); err != nil {
			return err
		}
		n.logger.Info().
			Str(log.FieldEvent, "normalize.respelled").
			Str(log.FieldCname, rename.NewCname).
			Int64(log.FieldAssetID, assetID).
			Msg("asset respelled")
	}
	return store.ExportReplica()
}

func renameArchive(r Rename) error {
	if err := os.MkdirAll(filepath.Dir(r.To), 0o755); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	if err := os.Rename(r.From, r.To); err != nil {
		return fmt.Errorf("normalize: rename: %w", err)
	}
	return nil
}

func majoritySpelling(variants map[string]int) string {
	spellings := make([]string, 0, len(variants))
	for spelling := range variants {
		spellings = append(spellings, spelling)
	}
	sort.Strings(spellings)
	best := spellings[0]
	for _, spelling := range spellings[1:] {
		if variants[spelling] > variants[best] {
			best = spelling
		}
	}
	return best
}

func sortedKeys(m map[string][]Rename) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
