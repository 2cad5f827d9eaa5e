package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pvieira/emchat/internal/api"
	"github.com/pvieira/emchat/internal/config"
	"github.com/pvieira/emchat/internal/session"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot read config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if args[0] == "login" {
		cmdLogin(ctx, cfg, profile, args[1:])
		return
	}

	id, err := session.LoadIdentity(profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: not logged in for profile %q, run: emchatctl login <username>\n", profile)
		os.Exit(1)
	}
	client := api.NewClient(cfg.ServerURL, id.Token, zap.NewNop())

	switch args[0] {
	case "chats":
		cmdChats(ctx, client, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: emchatctl messages <room-id> [page]")
			os.Exit(1)
		}
		cmdMessages(ctx, client, args[1:], *jsonFlag)
	case "online":
		cmdOnline(ctx, client, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: emchatctl send <receiver-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, client, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: emchatctl read <room-id>")
			os.Exit(1)
		}
		cmdRead(ctx, client, args[1])
	case "logout":
		cmdLogout(profile)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: emchatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <username>          Authenticate and store credentials")
	fmt.Fprintln(os.Stderr, "  logout                    Discard stored credentials")
	fmt.Fprintln(os.Stderr, "  chats                     List conversations")
	fmt.Fprintln(os.Stderr, "  messages <room> [page]    Show a conversation's messages")
	fmt.Fprintln(os.Stderr, "  online                    List currently online users")
	fmt.Fprintln(os.Stderr, "  send <receiver> <text>    Send a message")
	fmt.Fprintln(os.Stderr, "  read <room>               Mark a conversation as read")
}

func cmdLogin(ctx context.Context, cfg *config.Config, profile string, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: emchatctl login <username>")
		os.Exit(1)
	}
	username := args[0]

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	client := api.NewClient(cfg.ServerURL, "", zap.NewNop())
	res, err := client.Login(ctx, username, string(password))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := session.EnsureDir(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := session.SaveIdentity(profile, &session.Identity{
		UserID:      res.UserID,
		DisplayName: res.DisplayName,
		Token:       res.Token,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Logged in as %s\n", res.DisplayName)
}

func cmdLogout(profile string) {
	if err := session.ClearIdentity(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Logged out")
}

func cmdChats(ctx context.Context, client *api.Client, jsonOut bool) {
	chats, err := client.GetChatList(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	for _, c := range chats {
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
		}
		fmt.Printf("%-24s  %s%s\n", c.RoomID, c.DisplayName, unread)
	}
}

func cmdMessages(ctx context.Context, client *api.Client, args []string, jsonOut bool) {
	page := 1
	if len(args) > 1 {
		if _, err := fmt.Sscanf(args[1], "%d", &page); err != nil || page < 1 {
			fmt.Fprintf(os.Stderr, "error: bad page %q\n", args[1])
			os.Exit(1)
		}
	}
	msgs, err := client.GetChatMessageList(ctx, args[0], page)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.SentAt).Format("2006-01-02 15:04")
		fmt.Printf("[%s] %s: %s\n", ts, m.SenderID, m.Text)
	}
}

func cmdOnline(ctx context.Context, client *api.Client, jsonOut bool) {
	users, err := client.GetOnlineUsers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(users)
		return
	}
	for _, u := range users {
		fmt.Println(u)
	}
}

func cmdSend(ctx context.Context, client *api.Client, receiverID, text string, jsonOut bool) {
	res, err := client.SendMessage(ctx, receiverID, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("Sent %s to room %s\n", res.MessageID, res.RoomID)
}

func cmdRead(ctx context.Context, client *api.Client, roomID string) {
	if err := client.MarkChatAsRead(ctx, roomID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Marked as read")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
