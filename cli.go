package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Version is the current server release string.
const Version = "0.1.0"

// RunCLI dispatches the operator subcommands. "history" reads the audit
// database directly; "rooms", "admit", and "revoke" drive a running
// server's admin HTTP API, since room/user state lives only in that
// process's in-memory registry. Returns true if args named a recognized
// subcommand.
func RunCLI(args []string, dbPath, apiBaseURL string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("vox-sfu %s\n", Version)
		return true
	case "history":
		return cliHistory(args[1:], dbPath)
	case "rooms":
		return cliRooms(args[1:], apiBaseURL)
	case "admit":
		return cliAdmit(args[1:], apiBaseURL)
	case "revoke":
		return cliRevoke(args[1:], apiBaseURL)
	default:
		return false
	}
}

func cliHistory(args []string, dbPath string) bool {
	n := 20
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}

	a, err := OpenAuditLog(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening audit log: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	recs, err := a.Recent(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, r := range recs {
		fmt.Printf("%s  %-14s room=%d user=%d\n", r.CreatedAt.Format(time.RFC3339), r.Event, r.RoomID, r.UserID)
	}
	return true
}

func cliRooms(args []string, apiBaseURL string) bool {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: server rooms [add|remove|users] <room_id>\n")
		os.Exit(1)
	}
	switch args[0] {
	case "add":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: server rooms add <room_id>\n")
			os.Exit(1)
		}
		body, _ := json.Marshal(addRoomRequest{RoomID: parseUint32OrExit(args[1])})
		return cliPost(apiBaseURL+"/rooms", body)
	case "remove":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: server rooms remove <room_id>\n")
			os.Exit(1)
		}
		return cliDelete(fmt.Sprintf("%s/rooms/%s", apiBaseURL, args[1]))
	case "users":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: server rooms users <room_id>\n")
			os.Exit(1)
		}
		return cliGet(fmt.Sprintf("%s/rooms/%s/users", apiBaseURL, args[1]))
	default:
		fmt.Fprintf(os.Stderr, "Usage: server rooms [add|remove|users] <room_id>\n")
		os.Exit(1)
		return true
	}
}

func cliAdmit(args []string, apiBaseURL string) bool {
	if len(args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: server admit <room_id> <user_id> <token>\n")
		os.Exit(1)
	}
	body, _ := json.Marshal(admitUserRequest{UserID: parseUint32OrExit(args[1]), Token: args[2]})
	return cliPost(fmt.Sprintf("%s/rooms/%s/users", apiBaseURL, args[0]), body)
}

func cliRevoke(args []string, apiBaseURL string) bool {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: server revoke <room_id> <user_id>\n")
		os.Exit(1)
	}
	return cliDelete(fmt.Sprintf("%s/rooms/%s/users/%s", apiBaseURL, args[0], args[1]))
}

func parseUint32OrExit(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid id %q: %v\n", s, err)
		os.Exit(1)
	}
	return uint32(v)
}

func cliPost(url string, body []byte) bool {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	return cliPrintResponse(resp, err)
}

func cliDelete(url string) bool {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.DefaultClient.Do(req)
	return cliPrintResponse(resp, err)
}

func cliGet(url string) bool {
	resp, err := http.Get(url)
	return cliPrintResponse(resp, err)
}

func cliPrintResponse(resp *http.Response, err error) bool {
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	fmt.Printf("%d %s\n", resp.StatusCode, buf.String())
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
	return true
}
