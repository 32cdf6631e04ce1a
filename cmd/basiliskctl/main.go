package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/msadley/Basilisk-sub000/internal/bridge"
	"github.com/msadley/Basilisk-sub000/internal/home"
)

func main() {
	dataDir := flag.String("data-dir", home.Default(), "data directory")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := bridge.Dial(ctx, home.SocketPath(*dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	switch args[0] {
	case "chats":
		request(ctx, c, bridge.CmdGetChats, nil, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: basiliskctl messages <chat> [page]")
			os.Exit(1)
		}
		page := 1
		if len(args) >= 3 {
			page, err = strconv.Atoi(args[2])
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: bad page %q\n", args[2])
				os.Exit(1)
			}
		}
		request(ctx, c, bridge.CmdGetMessages,
			bridge.GetMessagesPayload{Chat: args[1], Page: page}, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: basiliskctl send <to> <content>")
			os.Exit(1)
		}
		request(ctx, c, bridge.CmdSendMessage,
			bridge.SendMessagePayload{To: args[1], Content: args[2]}, *jsonFlag)
	case "profile":
		id := ""
		if len(args) >= 2 {
			id = args[1]
		}
		request(ctx, c, bridge.CmdGetProfile, bridge.ProfileRefPayload{ID: id}, *jsonFlag)
	case "fetch":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: basiliskctl fetch <peer-id>")
			os.Exit(1)
		}
		request(ctx, c, bridge.CmdGetProfileUser,
			bridge.ProfileRefPayload{ID: args[1]}, *jsonFlag)
	case "patch":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: basiliskctl patch <name> [avatar]")
			os.Exit(1)
		}
		avatar := ""
		if len(args) >= 3 {
			avatar = args[2]
		}
		request(ctx, c, bridge.CmdPatchProfileSelf,
			bridge.PatchProfilePayload{Name: args[1], Avatar: avatar}, *jsonFlag)
	case "create-chat":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: basiliskctl create-chat <name> [member ...]")
			os.Exit(1)
		}
		request(ctx, c, bridge.CmdCreateChat,
			bridge.CreateChatPayload{Name: args[1], Members: args[2:]}, *jsonFlag)
	case "ping":
		request(ctx, c, bridge.CmdPingRelay, nil, *jsonFlag)
	case "close-db":
		request(ctx, c, bridge.CmdCloseDatabase, nil, *jsonFlag)
	case "watch":
		watch(c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: basiliskctl [--data-dir <dir>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  chats                      List chats")
	fmt.Fprintln(os.Stderr, "  messages <chat> [page]     Show a page of messages")
	fmt.Fprintln(os.Stderr, "  send <to> <content>        Send a message")
	fmt.Fprintln(os.Stderr, "  profile [id]               Show a stored profile (default: own)")
	fmt.Fprintln(os.Stderr, "  fetch <peer-id>            Fetch a profile from the peer")
	fmt.Fprintln(os.Stderr, "  patch <name> [avatar]      Update own profile")
	fmt.Fprintln(os.Stderr, "  create-chat <name> [m ...] Create a group chat")
	fmt.Fprintln(os.Stderr, "  ping                       Ping the configured relay")
	fmt.Fprintln(os.Stderr, "  close-db                   Close the daemon's database")
	fmt.Fprintln(os.Stderr, "  watch                      Stream daemon events")
}

func request(ctx context.Context, c *bridge.Client, cmdType string, payload any, jsonOut bool) {
	resp, err := c.Request(ctx, cmdType, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("%s\n", resp.Type)
	if resp.Payload != nil {
		outputJSON(resp.Payload)
	}
}

func watch(c *bridge.Client) {
	for evt := range c.Broadcasts() {
		outputJSON(evt)
	}
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
