package cli

import (
	"context"
	"fmt"

	syncmgr "github.com/electoral-office/fieldsync/internal/client/sync"
)

func (a *App) sync(ctx context.Context) {
	res, err := a.manager.FullSync(ctx)
	if err != nil {
		fmt.Println("Sync failed:", err)
		return
	}
	fmt.Println(res.Message)
	printUpload(res.Upload)
	printDownload(res.Download)
}

func (a *App) push(ctx context.Context) {
	res, err := a.manager.Upload(ctx)
	if err != nil {
		fmt.Println("Upload failed:", err)
		return
	}
	printUpload(res)
}

func (a *App) pull(ctx context.Context, args []string) {
	forceRefresh := len(args) > 0 && args[0] == "all"
	res, err := a.manager.Download(ctx, forceRefresh)
	if err != nil {
		fmt.Println("Download failed:", err)
		return
	}
	printDownload(res)
}

func printUpload(res *syncmgr.UploadResult) {
	fmt.Printf("Uploaded %d, failed %d\n", res.Uploaded, res.Failed)
	for _, e := range res.Errors {
		fmt.Printf("  entry %d (%s %s): %s\n", e.EntryID, e.Action, e.Collection, e.Err)
	}
}

func printDownload(res *syncmgr.DownloadResult) {
	for collection, n := range res.Counts {
		if n > 0 {
			fmt.Printf("  %s: %d merged\n", collection, n)
		}
	}
	for _, e := range res.Errors {
		fmt.Printf("  %s: %s\n", e.Collection, e.Err)
	}
}
