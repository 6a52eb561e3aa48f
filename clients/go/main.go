// CipherDial CLI - Command line client for CipherDial
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cipherdial/cipherdial/clients/go/cipherdial"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CIPHERDIAL_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := cipherdial.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "stats":
		resp, err := client.Stats()
		exitOnError(err)
		printJSON(resp)

	case "register":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: cipherdial register <phone> <password> [first] [last]")
			os.Exit(1)
		}
		first, last := "", ""
		if len(os.Args) > 4 {
			first = os.Args[4]
		}
		if len(os.Args) > 5 {
			last = os.Args[5]
		}
		resp, err := client.Register(os.Args[2], os.Args[3], first, last)
		exitOnError(err)
		fmt.Printf("Registered as user %d\n", resp.User.ID)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: cipherdial login <phone> <password>")
			os.Exit(1)
		}
		resp, err := client.Login(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Logged in as user %d\n", resp.User.ID)

	case "me":
		resp, err := client.Me()
		exitOnError(err)
		printJSON(resp)

	case "search":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: cipherdial search <phone-fragment>")
			os.Exit(1)
		}
		users, err := client.Search(os.Args[2])
		exitOnError(err)
		for _, u := range users {
			fmt.Printf("  %d  %s  %s %s\n", u.ID, u.Phone, u.FirstName, u.LastName)
		}

	case "dialogs":
		dialogs, err := client.ListDialogs()
		exitOnError(err)
		for _, d := range dialogs {
			last := "(empty)"
			if d.LastMessage != nil {
				last = d.LastMessage.CreatedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("  %d  %s  last: %s\n", d.ID, d.Participant.Phone, last)
		}

	case "open":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: cipherdial open <user_id>")
			os.Exit(1)
		}
		userID := parseID(os.Args[2])
		dialog, err := client.CreateDialog(userID)
		exitOnError(err)
		fmt.Printf("Dialog %d with %s\n", dialog.ID, dialog.Participant.Phone)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: cipherdial read <dialog_id>")
			os.Exit(1)
		}
		dialogID := parseID(os.Args[2])
		page, err := client.GetMessages(dialogID, 50, 0, time.Time{})
		exitOnError(err)
		for _, msg := range page.Items {
			ts := msg.CreatedAt.Local().Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %d: %s\n", ts, msg.SenderID, msg.Ciphertext)
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: cipherdial send <dialog_id> <ciphertext>")
			os.Exit(1)
		}
		dialogID := parseID(os.Args[2])
		msg, err := client.SendText(dialogID, os.Args[3])
		exitOnError(err)
		fmt.Printf("Sent message %d\n", msg.ID)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`CipherDial CLI - encrypted phone-book messaging

Usage: cipherdial <command> [options]

Commands:
  register <phone> <password> [first] [last]   Create an account
  login <phone> <password>                     Log in and store the session
  me                                           Show own profile
  search <phone-fragment>                      Find users by phone
  dialogs                                      List conversations
  open <user_id>                               Open a dialog with a user
  read <dialog_id>                             Read messages from a dialog
  send <dialog_id> <ciphertext>                Send a message
  stats                                        Show public server stats
  health                                       Check server health

Environment:
  CIPHERDIAL_URL      Server URL (default: http://localhost:8080)
  CIPHERDIAL_CONFIG   Config directory (default: ~/.cipherdial)`)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid id: %s\n", s)
		os.Exit(1)
	}
	return id
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
