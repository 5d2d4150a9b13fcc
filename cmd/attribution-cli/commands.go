// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/attributeai/attribution-engine/pkg/clock"
	"github.com/attributeai/attribution-engine/pkg/evolution"
	"github.com/attributeai/attribution-engine/pkg/idgen"
	"github.com/attributeai/attribution-engine/pkg/logging"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
	"github.com/attributeai/attribution-engine/pkg/scopedstore/badgerstore"
)

// --- Global Command Variables ---
var (
	badgerPath string
	workspace  string
	project    string

	// isTTY gates ANSI color codes on the evolve-report output, the same
	// "only decorate when a human is actually watching" check
	// githubnext-gh-aw's logger package runs against os.Stderr.
	isTTY = isatty.IsTerminal(os.Stdout.Fd())

	rootCmd = &cobra.Command{
		Use:   "attribution-cli",
		Short: "Drive the attribution engine's batch evolution jobs on demand",
	}

	evolveCmd = &cobra.Command{
		Use:   "evolve",
		Short: "Run confidence decay, salience detection, and alert expiry for every project",
		Run:   runEvolve,
	}

	seedProjectCmd = &cobra.Command{
		Use:   "seed-project",
		Short: "Register a workspace/project pair so evolve has something to scan",
		Run:   runSeedProject,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger-path", "", "optional BadgerDB directory; defaults to an in-memory store")
	seedProjectCmd.Flags().StringVar(&workspace, "workspace", "", "workspace to register")
	seedProjectCmd.Flags().StringVar(&project, "project", "", "project to register")
	_ = seedProjectCmd.MarkFlagRequired("workspace")
	_ = seedProjectCmd.MarkFlagRequired("project")

	rootCmd.AddCommand(evolveCmd, seedProjectCmd)
}

func openStore() (scopedstore.Store, func()) {
	if badgerPath == "" {
		return scopedstore.NewInMemoryStore(), func() {}
	}
	cfg := badgerstore.DefaultConfig()
	cfg.Path = badgerPath
	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "badgerstore.OpenDB: %v\n", err)
		os.Exit(1)
	}
	return badgerstore.New(db), func() { _ = db.Close() }
}

func runEvolve(cmd *cobra.Command, args []string) {
	logger := logging.New(logging.Config{Service: "attribution-cli"})
	defer logger.Close()

	store, closeStore := openStore()
	defer closeStore()

	proc := evolution.New(store, clock.System{}, idgen.UUID{}, nil, nil, logger.Slog())
	report, err := proc.RunAll(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "evolution run failed: %v\n", err)
		os.Exit(1)
	}

	printReport(report)
}

func runSeedProject(cmd *cobra.Command, args []string) {
	store, closeStore := openStore()
	defer closeStore()

	err := store.PutProject(context.Background(), scopedstore.Project{
		Workspace: workspace,
		Project:   project,
		Status:    scopedstore.ProjectActive,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "PutProject: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("registered %s/%s\n", workspace, project)
}

const (
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiReset = "\033[0m"
)

func colorize(code, s string) string {
	if !isTTY {
		return s
	}
	return code + s + ansiReset
}

func printReport(report evolution.Report) {
	for _, p := range report.Projects {
		if p.Err != nil {
			fmt.Printf("%s/%s: %s\n", p.Workspace, p.Project, colorize(ansiRed, p.Err.Error()))
			continue
		}
		fmt.Printf("%s/%s: archived=%d salience_opened=%d expired=%d promoted=%d\n",
			p.Workspace, p.Project,
			p.PatternsArchived, p.SalienceIssuesOpened, p.AlertsExpired, p.AlertsPromoted)
	}
	fmt.Println(colorize(ansiGreen, fmt.Sprintf("total patterns archived: %d", report.TotalPatternsArchived())))
}
