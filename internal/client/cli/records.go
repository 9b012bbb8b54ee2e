package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/electoral-office/fieldsync/internal/client/models"
)

func (a *App) add(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: add <collection>")
		return
	}

	fields, err := GetFields(a.reader, os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}
	if len(fields) == 0 {
		fmt.Println("Nothing to add")
		return
	}

	id, err := a.store.Add(ctx, args[0], fields)
	if err != nil {
		fmt.Println("Add failed:", err)
		return
	}
	fmt.Printf("Added %s/%d (queued for sync)\n", args[0], id)
}

func (a *App) list(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: list <collection>")
		return
	}

	recs, err := a.store.GetAll(ctx, args[0])
	if err != nil {
		fmt.Println("List failed:", err)
		return
	}
	for _, rec := range recs {
		printRecord(rec)
	}
	fmt.Printf("%d record(s)\n", len(recs))
}

func (a *App) get(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: get <collection> <id>")
		return
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Println("Bad id:", args[1])
		return
	}

	rec, err := a.store.Get(ctx, args[0], id)
	if err != nil {
		fmt.Println("Get failed:", err)
		return
	}
	printRecord(rec)
}

func (a *App) find(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: find <collection> <term>")
		return
	}

	recs, err := a.store.Search(ctx, args[0], args[1])
	if err != nil {
		fmt.Println("Search failed:", err)
		return
	}
	for _, rec := range recs {
		printRecord(rec)
	}
	fmt.Printf("%d match(es)\n", len(recs))
}

func (a *App) delete(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: delete <collection> <id>")
		return
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Println("Bad id:", args[1])
		return
	}

	if err := a.store.Delete(ctx, args[0], id); err != nil {
		fmt.Println("Delete failed:", err)
		return
	}
	fmt.Printf("Deleted %s/%d (queued for sync)\n", args[0], id)
}

func (a *App) stats(ctx context.Context) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		fmt.Println("Stats failed:", err)
		return
	}
	for _, name := range models.CollectionNames() {
		fmt.Printf("  %-12s %d\n", name, stats[name])
	}
	fmt.Printf("  %-12s %d\n", "pending", stats["pending_sync"])
}

func printRecord(rec *models.Record) {
	payload, _ := json.Marshal(rec.Fields)
	mark := " "
	if rec.Synced {
		mark = "*"
	}
	fmt.Printf("  [%d]%s %s\n", rec.ID, mark, payload)
}
