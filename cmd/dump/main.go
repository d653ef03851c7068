// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/air_monitor/internal/app"
)

func main() {
	databasePath := flag.String("db", "air_monitor.db", "path to measurements database")
	limit := flag.Int("limit", 20, "maximum rows per quantity and sensor")
	flag.Parse()

	if err := app.RunDump(*databasePath, *limit); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
