// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/ops"
)

// runStatus fetches the running system's status report from the ops
// surface and prints it.
func runStatus(cfg *config.AppConfig, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the raw JSON report")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg.Ops.Addr == "" {
		fmt.Fprintln(os.Stderr, "sonicat: no ops address configured")
		return 1
	}

	client := http.Client{Timeout: *timeout}
	resp, err := client.Get(opsURL(cfg.Ops.Addr, "/status"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: status: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "sonicat: status: %s\n", resp.Status)
		return 1
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: status: %v\n", err)
		return 1
	}

	if *asJSON {
		fmt.Println(string(body))
		return 0
	}
	var report ops.StatusReport
	if err := json.Unmarshal(body, &report); err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: status: %v\n", err)
		return 1
	}
	printStatus(report)
	return 0
}

func printStatus(report ops.StatusReport) {
	fmt.Println("queues:")
	for _, role := range sortedStatusKeys(report.Queues) {
		depths := report.Queues[role]
		fmt.Printf("  %-18s command %-6d inbound %d\n", role, depths["command"], depths["inbound"])
	}
	fmt.Println("ledgers:")
	for _, app := range sortedStatusKeys(report.Ledgers) {
		byCatalog := report.Ledgers[app]
		catalogs := make([]string, 0, len(byCatalog))
		for c := range byCatalog {
			catalogs = append(catalogs, c)
		}
		sort.Strings(catalogs)
		for _, c := range catalogs {
			counts := byCatalog[c]
			fmt.Printf("  %-18s %-12s completed %-6d failed %d\n", app, c, counts.Completed, counts.Failed)
		}
	}
}

// opsURL turns a listen address into a client URL; a bare ":port" means
// the local host.
func opsURL(addr, path string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}

func sortedStatusKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
