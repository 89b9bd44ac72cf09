// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

// runHealthcheck probes the ops surface. It takes the address directly so
// container health checks need no config tree mounted.
func runHealthcheck(args []string) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	addr := fs.String("addr", "localhost:9187", "ops address to probe")
	mode := fs.String("mode", "ready", `probe mode: "ready" or "live"`)
	timeout := fs.Duration("timeout", 5*time.Second, "probe timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := "/readyz"
	if *mode == "live" {
		path = "/healthz"
	}

	client := http.Client{Timeout: *timeout}
	resp, err := client.Get(opsURL(*addr, path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sonicat: healthcheck: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "sonicat: healthcheck: %s\n", resp.Status)
		return 1
	}
	fmt.Printf("ok (%s)\n", *mode)
	return 0
}
