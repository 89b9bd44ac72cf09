// SPDX-License-Identifier: MIT

// Command sonicat is the single entry point for every process of the
// catalog system: the scheduler and workers (run), the offline batches
// (intake, survey, harmonics, normalize), and the operator helpers
// (inspect, status, healthcheck).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/version"
)

const usage = `usage: sonicat [--root <path>] <command> [flags]

commands:
  run         run the scheduler and/or workers (--role <role|all>)
  intake      batch-intake canonical assets from the intake directories
  survey      write survey JSON for every archived asset
  harmonics   compute pairwise chroma-distribution distances
  normalize   tidy the managed trees (label spellings, loose archives)
  inspect     print the audio tags of a file
  status      print the running system's status report
  healthcheck probe the ops surface (for container health checks)

sonicat --version prints the build identity.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sonicat", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	root := fs.String("root", os.Getenv("SONICAT_PATH"), "sonicat path (default $SONICAT_PATH)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println("sonicat " + version.String())
		return 0
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	command, commandArgs := rest[0], rest[1:]
	switch command {
	case "inspect":
		// Needs no configuration.
		return runInspect(commandArgs)
	case "healthcheck":
		return runHealthcheck(commandArgs)
	}

	cfg, err := loadConfig(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: %v\n", err)
		return 1
	}

	switch command {
	case "run":
		return runRun(cfg, commandArgs)
	case "intake":
		return runIntake(cfg, commandArgs)
	case "survey":
		return runSurvey(cfg, commandArgs)
	case "harmonics":
		return runHarmonics(cfg, commandArgs)
	case "normalize":
		return runNormalize(cfg, commandArgs)
	case "status":
		return runStatus(cfg, commandArgs)
	default:
		fmt.Fprintf(os.Stderr, "sonicat: unknown command %q\n", command)
		fs.Usage()
		return 2
	}
}

func loadConfig(root string) (*config.AppConfig, error) {
	if root == "" {
		return nil, fmt.Errorf("no sonicat path: set --root or SONICAT_PATH")
	}
	cfg, err := config.NewLoader(root).Load()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configureLogging installs the process logger: a dated file under the
// role's log directory multiplexed with stderr. Falls back to stderr alone
// when the file cannot be opened.
func configureLogging(cfg *config.AppConfig, appType, moniker string) {
	writers := []io.Writer{os.Stderr}
	if file, err := log.FileOutput(cfg.LogPath(appType), moniker); err == nil {
		writers = append(writers, file)
	} else {
		fmt.Fprintf(os.Stderr, "sonicat: log file unavailable: %v\n", err)
	}
	log.Configure(log.Config{
		Level:  cfg.LogLevel,
		Output: zerolog.MultiLevelWriter(writers...),
	})
}
