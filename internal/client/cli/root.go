package cli

import (
	"context"
	"fmt"
	"strings"
)

func (a *App) getStatus() string {
	s := "offline"
	if a.watcher.Online() {
		s = "online"
	}
	if a.manager.Syncing() {
		s += ", syncing"
	}
	return fmt.Sprintf("(%s)", s)
}

func (a *App) Root(ctx context.Context) {

	fmt.Println("Welcome to fieldsync (type 'help' for commands)")

	for {
		fmt.Printf("fieldsync %s> ", a.getStatus())
		line, err := a.reader.ReadString('\n')
		if err != nil {
			break
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands:")
			fmt.Println("  add <collection>                 add a record")
			fmt.Println("  list <collection>                list records")
			fmt.Println("  get <collection> <id>            show one record")
			fmt.Println("  find <collection> <term>         substring search")
			fmt.Println("  delete <collection> <id>         delete a record")
			fmt.Println("  sync | push | pull [all]         synchronize with the server")
			fmt.Println("  stats | status                   local counts / connectivity")
			fmt.Println("  export <file> | import <file>    JSON dump / destructive restore")
			fmt.Println("  login | token <jwt>              authenticate against the server")
			fmt.Println("  exit")

		case "add":
			a.add(ctx, args)
		case "list":
			a.list(ctx, args)
		case "get":
			a.get(ctx, args)
		case "find":
			a.find(ctx, args)
		case "delete":
			a.delete(ctx, args)
		case "sync":
			a.sync(ctx)
		case "push":
			a.push(ctx)
		case "pull":
			a.pull(ctx, args)
		case "stats":
			a.stats(ctx)
		case "status":
			fmt.Println("Connectivity:", a.getStatus())
		case "export":
			a.export(ctx, args)
		case "import":
			a.importFile(ctx, args)
		case "login":
			a.login(ctx)
		case "token":
			a.token(ctx, args)
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}
