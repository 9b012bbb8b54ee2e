package cli

import (
	"context"
	"fmt"
	"os"
)

func (a *App) export(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: export <file>")
		return
	}

	data, err := a.store.ExportToJSON(ctx)
	if err != nil {
		fmt.Println("Export failed:", err)
		return
	}
	if err := os.WriteFile(args[0], data, 0o600); err != nil {
		fmt.Println("Export failed:", err)
		return
	}
	fmt.Println("Exported to", args[0])
}

func (a *App) importFile(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: import <file>")
		return
	}

	answer, err := GetSimpleText(a.reader,
		"Import replaces local data for every collection in the file. Continue? (yes/no)", os.Stdout)
	if err != nil || answer != "yes" {
		fmt.Println("Import cancelled")
		return
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Println("Import failed:", err)
		return
	}
	if err := a.store.ImportFromJSON(ctx, data); err != nil {
		fmt.Println("Import failed:", err)
		return
	}
	fmt.Println("Data imported successfully")
}
