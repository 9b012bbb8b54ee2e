package cli

import (
	"context"
	"fmt"
	"os"
)

func (a *App) login(ctx context.Context) {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}

	password, err := GetPassword(os.Stdout)
	if err != nil {
		fmt.Println("Input error:", err)
		return
	}

	if err := a.api.Login(ctx, username, string(password)); err != nil {
		fmt.Println("Login failed:", err)
		return
	}
	fmt.Println("Logged in as", username)
}

func (a *App) token(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: token <jwt>")
		return
	}

	if err := a.api.SetAccessToken(ctx, args[0]); err != nil {
		fmt.Println("Token rejected:", err)
		return
	}
	fmt.Println("Access token installed")
}
