// SPDX-License-Identifier: MIT

// Package router decides the next hop for a task leaving a runner. The
// decision is a total, pure function over the task and the routing app's
// identity; rules are evaluated in order and the first match wins.
package router

import (
	"github.com/jdswan/sonicat/internal/config"
	"github.com/jdswan/sonicat/internal/task"
)

// Terminal is the empty target: the task's chain is complete and the
// runner drops it after logging.
const Terminal = ""

// archiveBracketed lists the apps whose chains continue with a file-mover
// step after their results are recorded (archive after intake, remove
// after raw-bytes analysis). Tasks of all other apps are terminal once
// recorded.
var archiveBracketed = map[string]bool{
	config.AppInventory: true,
	config.AppLibrosa:   true,
	config.AppCueParser: true,
}

// Target returns the queue role the task moves to next, or Terminal.
//
// Rule order:
//  1. scheduler dispatch: the named worker
//  2. file_mover returns to the scheduler
//  3. inventory surveys are recorded before archiving
//  4. recorded tasks of bracketed apps hop onward to file_mover;
//     everything else recorded is terminal
//  5. analysis, metadata and tokens workers hand results to app_data
//  6. default: terminal (drop and log)
func Target(t *task.Task, routerApp, routerType string) string {
	if routerType == config.TypeSystem {
		switch routerApp {
		case config.AppTasks:
			return t.AppName
		case config.AppFileMover:
			return config.AppTasks
		case config.AppInventory:
			return config.AppAppData
		case config.AppAppData:
			if archiveBracketed[t.AppName] {
				return config.AppFileMover
			}
			return Terminal
		}
	}
	switch routerType {
	case config.TypeAnalysis, config.TypeMetadata, config.TypeTokens:
		return config.AppAppData
	}
	return Terminal
}
