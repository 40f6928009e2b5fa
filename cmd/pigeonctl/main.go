package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pigeonchat/pigeon/internal/client/api"
	"github.com/pigeonchat/pigeon/internal/config"
	"github.com/pigeonchat/pigeon/internal/model"
	"github.com/pigeonchat/pigeon/internal/session"
)

func main() {
	serverFlag := flag.String("server", "", "server URL (overrides config)")
	tokenFlag := flag.String("token", "", "bearer token (overrides config)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	cfg, _ := config.Load(session.ConfigPath())
	serverURL := cfg.Client.ServerURL
	if *serverFlag != "" {
		serverURL = *serverFlag
	}
	token := cfg.Client.Token
	if *tokenFlag != "" {
		token = *tokenFlag
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := api.New(serverURL, token)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "register":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl register <username> [display name]")
			os.Exit(1)
		}
		display := ""
		if len(args) >= 3 {
			display = args[2]
		}
		cmdRegister(ctx, c, args[1], display, *jsonFlag)
	case "whoami":
		cmdWhoami(ctx, c, *jsonFlag)
	case "users":
		cmdUsers(ctx, c, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl search <query>")
			os.Exit(1)
		}
		cmdSearch(ctx, c, args[1], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl send <userID> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], args[2], *jsonFlag)
	case "history":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: pigeonctl history <userID>")
			os.Exit(1)
		}
		cmdHistory(ctx, c, args[1], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pigeonctl [--server <url>] [--token <token>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  register <username> [display]  Create an account and print its token")
	fmt.Fprintln(os.Stderr, "  whoami                         Show the identity behind the token")
	fmt.Fprintln(os.Stderr, "  users                          List users")
	fmt.Fprintln(os.Stderr, "  search <query>                 Search users")
	fmt.Fprintln(os.Stderr, "  send <userID> <text>           Send a message")
	fmt.Fprintln(os.Stderr, "  history <userID>               Show conversation history")
}

func cmdRegister(ctx context.Context, c *api.Client, username, display string, jsonOut bool) {
	reg, err := c.Register(ctx, username, display)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(reg)
		return
	}
	fmt.Printf("User:  %s (%s)\n", reg.User.Username, reg.User.ID)
	fmt.Printf("Token: %s\n", reg.Token)
	fmt.Println("\nSave the token as client.token in ~/.pigeon/config.toml; it is not shown again.")
}

func cmdWhoami(ctx context.Context, c *api.Client, jsonOut bool) {
	user, err := c.Me(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(user)
		return
	}
	fmt.Printf("%s (%s)\n", user.Username, user.ID)
}

func cmdUsers(ctx context.Context, c *api.Client, jsonOut bool) {
	users, err := c.Users(ctx)
	if err != nil {
		fail(err)
	}
	printUsers(users, jsonOut)
}

func cmdSearch(ctx context.Context, c *api.Client, query string, jsonOut bool) {
	users, err := c.SearchUsers(ctx, query)
	if err != nil {
		fail(err)
	}
	printUsers(users, jsonOut)
}

func printUsers(users []model.User, jsonOut bool) {
	if jsonOut {
		outputJSON(users)
		return
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return
	}
	for _, u := range users {
		fmt.Printf("%-36s %-20s %s\n", u.ID, u.Username, u.DisplayName)
	}
}

func cmdSend(ctx context.Context, c *api.Client, userID, text string, jsonOut bool) {
	msg, err := c.SendMessage(ctx, userID, api.SendRequest{Text: text})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Sent %s at %s\n", msg.ID, time.UnixMilli(msg.CreatedAt).Format(time.RFC3339))
}

func cmdHistory(ctx context.Context, c *api.Client, userID string, jsonOut bool) {
	msgs, err := c.Conversation(ctx, userID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		mark := " "
		if m.DeliveredAt != nil {
			mark = "✓"
		}
		body := m.Text
		if m.ImageURL != "" {
			if body != "" {
				body += " "
			}
			body += "[image: " + m.ImageURL + "]"
		}
		fmt.Printf("%s %s %s: %s\n",
			time.UnixMilli(m.CreatedAt).Format("2006-01-02 15:04"), mark, m.SenderID, body)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
