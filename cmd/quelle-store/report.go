package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nacht-org/quelle-store/registry"
	"github.com/nacht-org/quelle-store/store"
	"github.com/nacht-org/quelle-store/storemanager"
)

func runHealthCheck(ctx context.Context, mgr *storemanager.Manager) error {
	health := mgr.HealthCheck(ctx)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Store", "Reachable", "Latency", "Error"})
	for _, name := range mgr.ListStores() {
		h, ok := health[name]
		if !ok {
			continue
		}
		t.AppendRow(table.Row{name, h.Reachable, h.Latency, h.Error})
	}
	t.Render()

	if all, ok := health["all"]; ok && len(all.Conflicts) > 0 {
		fmt.Println()
		fmt.Println("Conflicts detected between stores:")
		for _, c := range all.Conflicts {
			fmt.Println(" -", c)
		}
	}
	return nil
}

func runSearch(ctx context.Context, mgr *storemanager.Manager, text string) error {
	results, err := mgr.SearchExtensions(ctx, store.Query{Text: text, Sort: store.SortRelevance, Limit: 50})
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Version", "Author", "Store", "Description"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Summary.ID, r.Summary.Version, r.Summary.Author, r.StoreName, r.Summary.Description})
	}
	t.Render()
	return nil
}

func runRegistryGC(reg *registry.Registry, installRoot string) error {
	dropped, removed, err := reg.Cleanup(installRoot)
	if err != nil {
		return err
	}
	for _, id := range dropped {
		fmt.Println("dropped stale registry entry:", id)
	}
	for _, dir := range removed {
		fmt.Println("removed orphan install directory:", dir)
	}
	if len(dropped) == 0 && len(removed) == 0 {
		fmt.Println("registry is clean")
	}
	return nil
}
