// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/filemover"
	"github.com/jdswan/sonicat/internal/harmonics"
	"github.com/jdswan/sonicat/internal/intake"
	"github.com/jdswan/sonicat/internal/normalize"
)

// runIntake surveys, commits, and archives every canonical asset sitting
// in the intake directories. Non-compliant directories are listed in the
// report CSV and skipped.
func runIntake(cfg *config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("intake", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	configureLogging(cfg, config.TypeSystem, batchMoniker(cfg))
	ctx, stop := batchContext()
	defer stop()

	clerk, err := intake.New(cfg, filemover.New(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: %v\n", err)
		return 1
	}
	defer func() {
		_ = clerk.Close()
	}()

	report, err := clerk.RunBatch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: intake: %v\n", err)
		return 1
	}
	fmt.Printf("committed %d, non-compliant %d\n", report.Committed, len(report.Noncompliant))
	for _, nc := range report.Noncompliant {
		fmt.Printf("  skipped %s: %s\n", nc.Cname, nc.Reason)
	}
	return 0
}

// runSurvey writes a survey JSON beside each catalog's export tree for
// every archived asset.
func runSurvey(cfg *config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("survey", flag.ContinueOnError)
	parallel := fs.Int("parallel", 4, "assets surveyed concurrently")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	configureLogging(cfg, config.TypeSystem, batchMoniker(cfg))
	ctx, stop := batchContext()
	defer stop()

	clerk, err := intake.New(cfg, filemover.New(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: %v\n", err)
		return 1
	}
	defer func() {
		_ = clerk.Close()
	}()

	if err := clerk.SurveyBatch(ctx, *parallel); err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: survey: %v\n", err)
		return 1
	}
	return 0
}

// runHarmonics computes pairwise chroma-distribution distances across the
// analyzed files of every catalog.
func runHarmonics(cfg *config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("harmonics", flag.ContinueOnError)
	parallel := fs.Int("parallel", 4, "anchor files processed concurrently")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	configureLogging(cfg, config.TypeAnalysis, "Harmonic")
	ctx, stop := batchContext()
	defer stop()

	r, err := harmonics.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: %v\n", err)
		return 1
	}
	defer func() {
		_ = r.Close()
	}()

	if err := r.Run(ctx, *parallel); err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: harmonics: %v\n", err)
		return 1
	}
	return 0
}

// runNormalize plans managed-tree cleanups and prints them; --apply
// executes the plan and keeps catalog rows in step.
func runNormalize(cfg *config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "execute the plan (default is a dry run)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	configureLogging(cfg, config.TypeSystem, batchMoniker(cfg))
	ctx, stop := batchContext()
	defer stop()

	n := normalize.New(cfg)
	report, err := n.Plan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: normalize: %v\n", err)
		return 1
	}
	if report.Empty() {
		fmt.Println("nothing to do")
		return 0
	}
	for _, move := range report.Moves {
		fmt.Printf("sort  %s -> %s\n", move.From, move.To)
	}
	for _, respell := range report.Respells {
		fmt.Printf("label %s/%s: majority spelling %q over %d variants\n",
			respell.Catalog, respell.LabelDir, respell.Majority, len(respell.Variants))
	}
	for _, rename := range report.Renames {
		fmt.Printf("spell %s -> %s\n", rename.OldCname, rename.NewCname)
	}
	if !*apply {
		fmt.Println("dry run; pass --apply to execute")
		return 0
	}
	if err := n.Apply(ctx, report); err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: normalize: %v\n", err)
		return 1
	}
	fmt.Printf("applied %d moves, %d renames\n", len(report.Moves), len(report.Renames))
	return 0
}

func batchContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func batchMoniker(cfg *config.AppConfig) string {
	if m := cfg.AppMoniker(config.AppCatalogIntake); m != "" {
		return m
	}
	return "CatalogIntake"
}
