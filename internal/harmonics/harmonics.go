// SPDX-License-Identifier: MIT

// Package harmonics computes pairwise chroma-distribution distances as a
// one-shot batch over the analysis data. Pairs within one catalog skip
// same-label files; pairs across catalogs are unrestricted. Results land in
// the harmonic store under the commutative ordering convention, so a rerun
// after an interruption writes nothing twice.
package harmonics

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jdswan/sonicat/internal/appdata"
	"github.com/jdswan/sonicat/internal/catalog"
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
)

const defaultParallelism = 4

// catalogData is one catalog's batch input: chroma distributions keyed by
// file id and the file → label mapping for the same-label exclusion.
type catalogData struct {
	name   string
	files  []int64
	chroma map[int64][]float64
	labels map[int64]int64
}

// Runner drives one harmonics batch.
type Runner struct {
	cfg    *config.AppConfig
	store  *appdata.HarmonicStore
	logger zerolog.Logger
}

// New opens the harmonic store.
func New(cfg *config.AppConfig) (*Runner, error) {
	store, err := appdata.OpenHarmonic(cfg.HarmonicDBPath())
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:    cfg,
		store:  store,
		logger: log.WithComponent("harmonics"),
	}, nil
}

// Close releases the harmonic store.
func (r *Runner) Close() error {
	return r.store.Close()
}

// Run computes every missing pair distance, intracatalog first, then across
// each catalog pair, and snapshots the store's replica when done.
func (r *Runner) Run(ctx context.Context, parallel int) error {
	if parallel <= 0 {
		parallel = defaultParallelism
	}
	inputs, err := r.load(ctx)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		if err := r.intracatalog(ctx, in, parallel); err != nil {
			return err
		}
	}
	for i := range inputs {
		for j := i + 1; j < len(inputs); j++ {
			if err := r.crosscatalog(ctx, inputs[i], inputs[j], parallel); err != nil {
				return err
			}
		}
	}
	if err := r.store.ExportReplica(); err != nil {
		return err
	}
	r.logger.Info().
		Str(log.FieldEvent, "harmonics.batch_done").
		Int("catalogs", len(inputs)).
		Msg("harmonics batch finished")
	return nil
}

// load gathers each catalog's chroma distributions and label mapping.
// Catalogs without analysis data contribute nothing.
func (r *Runner) load(ctx context.Context) ([]catalogData, error) {
	analysis, err := r.openAnalysis()
	if err != nil {
		return nil, err
	}
	defer func() { _ = analysis.Close() }()

	var inputs []catalogData
	for _, name := range r.cfg.CatalogNames() {
		chroma, err := analysis.ChromaDistributions(ctx, name, 0, 0)
		if err != nil {
			return nil, err
		}
		if len(chroma) == 0 {
			continue
		}
		store, err := r.openCatalog(name)
		if err != nil {
			return nil, err
		}
		labels, err := store.FileLabels(ctx)
		_ = store.Close()
		if err != nil {
			return nil, err
		}
		files := make([]int64, 0, len(chroma))
		for id := range chroma {
			files = append(files, id)
		}
		sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })
		inputs = append(inputs, catalogData{name: name, files: files, chroma: chroma, labels: labels})
	}
	return inputs, nil
}

// intracatalog walks the ordered pairs (id1 < id2) of one catalog, resuming
// past the last pair a previous run recorded.
func (r *Runner) intracatalog(ctx context.Context, in catalogData, parallel int) error {
	lastFile1, lastFile2, err := r.store.LastPair(ctx, in.name)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, file1 := range in.files {
		if file1 < lastFile1 {
			continue
		}
		rest := in.files[i+1:]
		g.Go(func() error {
			for _, file2 := range rest {
				if err := gctx.Err(); err != nil {
					return err
				}
				if file1 == lastFile1 && file2 <= lastFile2 {
					continue
				}
				if in.labels[file1] == in.labels[file2] {
					continue
				}
				d := appdata.Distance{
					Catalog1: in.name, File1: file1,
					Catalog2: in.name, File2: file2,
					Distance: ChromaDistance(in.chroma[file1], in.chroma[file2]),
				}
				if err := r.store.AddDistance(gctx, d); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info().
		Str(log.FieldEvent, "harmonics.catalog_done").
		Str(log.FieldCatalog, in.name).
		Int("files", len(in.files)).
		Msg("intracatalog distances computed")
	return nil
}

func (r *Runner) crosscatalog(ctx context.Context, a, b catalogData, parallel int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, file1 := range a.files {
		g.Go(func() error {
			for _, file2 := range b.files {
				if err := gctx.Err(); err != nil {
					return err
				}
				d := appdata.Distance{
					Catalog1: a.name, File1: file1,
					Catalog2: b.name, File2: file2,
					Distance: ChromaDistance(a.chroma[file1], b.chroma[file2]),
				}
				if err := r.store.AddDistance(gctx, d); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// openAnalysis prefers the replica snapshot, falling back to the live store
// when no export has happened yet.
func (r *Runner) openAnalysis() (*appdata.AnalysisStore, error) {
	live := r.cfg.AppDBPath(config.AppLibrosa)
	replica := config.ReplicaPath(live)
	if _, err := os.Stat(replica); err == nil {
		return appdata.OpenAnalysisReplica(replica)
	}
	if _, err := os.Stat(live); err != nil {
		return nil, fmt.Errorf("harmonics: no analysis data at %s", live)
	}
	return appdata.OpenAnalysis(live)
}

func (r *Runner) openCatalog(name string) (*catalog.Store, error) {
	live := r.cfg.CatalogDBPath(name)
	replica := config.ReplicaPath(live)
	if _, err := os.Stat(replica); err == nil {
		return catalog.OpenReplica(replica)
	}
	return catalog.Open(live)
}

// ChromaDistance is the sum of squared channel differences between two
// 12-channel distributions.
func ChromaDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		if i >= len(b) {
			break
		}
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
