package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matheus3301/wisp/internal/cache"
	"github.com/matheus3301/wisp/internal/channel"
	"github.com/matheus3301/wisp/internal/client"
	"github.com/matheus3301/wisp/internal/config"
	"github.com/matheus3301/wisp/internal/logging"
	"github.com/matheus3301/wisp/internal/profile"
	"github.com/matheus3301/wisp/internal/store"
	"github.com/matheus3301/wisp/internal/sync"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	addrFlag := flag.String("addr", "", "daemon address (overrides config)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	addr := cfg.ListenAddr
	if *addrFlag != "" {
		addr = *addrFlag
	}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	c := client.New(base)
	if creds, err := loadCreds(profileName); err == nil {
		c.SetAuth(creds.Token, creds.UID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "register":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl register <username> [email]")
			os.Exit(1)
		}
		email := ""
		if len(args) >= 3 {
			email = args[2]
		}
		cmdRegister(ctx, c, profileName, args[1], email, *jsonFlag)
	case "me":
		cmdMe(ctx, c, *jsonFlag)
	case "rename":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl rename <username>")
			os.Exit(1)
		}
		cmdRename(ctx, c, profileName, args[1], *jsonFlag)
	case "friends":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl friends <list|add|requests|accept|reject|remove> [arg]")
			os.Exit(1)
		}
		cmdFriends(ctx, c, args[1:], *jsonFlag)
	case "channels":
		if len(args) >= 2 && args[1] == "list" {
			cmdChannelsList(ctx, c, *jsonFlag)
		} else if len(args) >= 3 && args[1] == "delete" {
			cmdChannelDelete(ctx, c, args[2])
		} else {
			fmt.Fprintln(os.Stderr, "usage: wispctl channels <list|delete <peer-uid>>")
			os.Exit(1)
		}
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wispctl send <peer-uid> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "history":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl history <peer-uid> [count]")
			os.Exit(1)
		}
		count := 20
		if len(args) >= 3 {
			if n, convErr := strconv.Atoi(args[2]); convErr == nil && n > 0 {
				count = n
			}
		}
		cmdHistory(ctx, c, args[1], count, *jsonFlag)
	case "chat":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl chat <peer-uid>")
			os.Exit(1)
		}
		cancel()
		cmdChat(c, cfg, profileName, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wispctl [--profile <name>] [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  register <username> [email]  Create an account and store credentials")
	fmt.Fprintln(os.Stderr, "  me                           Show the authenticated account")
	fmt.Fprintln(os.Stderr, "  rename <username>            Claim a new username")
	fmt.Fprintln(os.Stderr, "  friends list                 List friend uids")
	fmt.Fprintln(os.Stderr, "  friends add <username>       Send a friend request")
	fmt.Fprintln(os.Stderr, "  friends requests             List pending requests addressed to you")
	fmt.Fprintln(os.Stderr, "  friends accept <id>          Accept a request")
	fmt.Fprintln(os.Stderr, "  friends reject <id>          Reject a request")
	fmt.Fprintln(os.Stderr, "  friends remove <uid>         Unfriend")
	fmt.Fprintln(os.Stderr, "  channels list                List saved conversations")
	fmt.Fprintln(os.Stderr, "  channels delete <peer-uid>   Delete a conversation")
	fmt.Fprintln(os.Stderr, "  send <peer-uid> <text>       Send one message")
	fmt.Fprintln(os.Stderr, "  history <peer-uid> [count]   Print recent messages")
	fmt.Fprintln(os.Stderr, "  chat <peer-uid>              Open a live conversation")
}

// creds is the stored authentication state for a profile.
type creds struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func credsPath(profileName string) string {
	return filepath.Join(profile.Dir(profileName), "credentials.json")
}

func loadCreds(profileName string) (*creds, error) {
	data, err := os.ReadFile(credsPath(profileName))
	if err != nil {
		return nil, err
	}
	var cr creds
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, err
	}
	return &cr, nil
}

func saveCreds(profileName string, cr *creds) error {
	if err := profile.EnsureDir(profileName); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(credsPath(profileName), data, 0600)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdRegister(ctx context.Context, c *client.Client, profileName, username, email string, jsonOut bool) {
	u, err := c.Register(ctx, username, email)
	if err != nil {
		fail(err)
	}
	if err := saveCreds(profileName, &creds{UID: u.UID, Username: u.Username, Token: c.Token()}); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(u)
		return
	}
	fmt.Printf("Registered %s (%s)\n", u.Username, u.UID)
}

func cmdMe(ctx context.Context, c *client.Client, jsonOut bool) {
	u, err := c.Me(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(u)
		return
	}
	fmt.Printf("UID:      %s\n", u.UID)
	fmt.Printf("Username: %s\n", u.Username)
	fmt.Printf("Plan:     %s\n", u.Plan)
	fmt.Printf("Sent today: %d\n", u.DailyMessageCount)
}

func cmdRename(ctx context.Context, c *client.Client, profileName, username string, jsonOut bool) {
	u, err := c.Rename(ctx, username)
	if err != nil {
		fail(err)
	}
	if cr, loadErr := loadCreds(profileName); loadErr == nil {
		cr.Username = u.Username
		_ = saveCreds(profileName, cr)
	}
	if jsonOut {
		outputJSON(u)
		return
	}
	fmt.Printf("Now known as %s\n", u.Username)
}

func cmdFriends(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	switch args[0] {
	case "list":
		uids, err := c.Friends(ctx)
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(uids)
			return
		}
		if len(uids) == 0 {
			fmt.Println("No friends yet.")
			return
		}
		for _, uid := range uids {
			fmt.Println(uid)
		}
	case "add":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl friends add <username>")
			os.Exit(1)
		}
		req, err := c.SendFriendRequest(ctx, args[1])
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(req)
			return
		}
		fmt.Printf("Request %s sent to %s\n", req.ID, req.ReceiverID)
	case "requests":
		reqs, err := c.PendingRequests(ctx)
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(reqs)
			return
		}
		if len(reqs) == 0 {
			fmt.Println("No pending requests.")
			return
		}
		for _, r := range reqs {
			fmt.Printf("%s  from %s\n", r.ID, r.SenderID)
		}
	case "accept":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl friends accept <id>")
			os.Exit(1)
		}
		req, err := c.AcceptFriendRequest(ctx, args[1])
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(req)
			return
		}
		fmt.Printf("Now friends with %s\n", req.SenderID)
	case "reject":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl friends reject <id>")
			os.Exit(1)
		}
		if _, err := c.RejectFriendRequest(ctx, args[1]); err != nil {
			fail(err)
		}
		fmt.Println("Rejected.")
	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wispctl friends remove <uid>")
			os.Exit(1)
		}
		if err := c.Unfriend(ctx, args[1]); err != nil {
			fail(err)
		}
		fmt.Println("Removed.")
	default:
		fmt.Fprintf(os.Stderr, "unknown friends subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdChannelsList(ctx context.Context, c *client.Client, jsonOut bool) {
	peers, err := c.Channels(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(peers)
		return
	}
	if len(peers) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	for _, p := range peers {
		fmt.Println(p)
	}
}

func cmdChannelDelete(ctx context.Context, c *client.Client, peerUID string) {
	if err := c.DeleteChannel(ctx, peerUID); err != nil {
		fail(err)
	}
	fmt.Println("Deleted.")
}

func cmdSend(ctx context.Context, c *client.Client, peerUID, text string, jsonOut bool) {
	m, err := c.Send(ctx, store.Outgoing{
		SenderID:        c.UID(),
		ReceiverID:      peerUID,
		Body:            text,
		ClientMessageID: fmt.Sprintf("ctl-%d", time.Now().UnixNano()),
	})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(m)
		return
	}
	fmt.Printf("Sent %s\n", m.ID)
}

func cmdHistory(ctx context.Context, c *client.Client, peerUID string, count int, jsonOut bool) {
	key, err := channel.Key(c.UID(), peerUID)
	if err != nil {
		fail(err)
	}
	msgs, err := c.FetchOlder(ctx, key, store.Cursor{}, count)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	// The API returns newest first; print oldest first.
	for i := len(msgs) - 1; i >= 0; i-- {
		printMessage(c.UID(), msgs[i])
	}
}

func cmdChat(c *client.Client, cfg *config.Config, profileName, peerUID string) {
	if c.UID() == "" {
		fail(fmt.Errorf("not registered; run wispctl register first"))
	}

	logger, err := logging.New(filepath.Join(profile.LogDir(profileName), "wispctl.log"), profileName)
	if err != nil {
		fail(err)
	}

	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	var seedCache cache.Cache
	if cfg.RedisAddr != "" {
		seedCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), ttl)
	} else {
		seedCache = cache.NewMemory(ttl)
	}

	session, err := sync.NewSession(sync.Options{
		Transport: c,
		Cache:     seedCache,
		Log:       logger,
		SelfUID:   c.UID(),
		PeerUID:   peerUID,
		PageSize:  cfg.PageSize,
	})
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := session.Open(ctx); err != nil {
		fail(err)
	}
	defer session.Close()

	fmt.Printf("Chatting with %s. Type a message, /older for history, /quit to leave.\n", peerUID)

	go func() {
		var shown int
		for range session.Updates() {
			msgs := session.Messages()
			for ; shown < len(msgs); shown++ {
				printMessage(c.UID(), msgs[shown])
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				return
			case "/older":
				if err := session.LoadOlder(ctx, nil); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			default:
				if err := session.SendText(ctx, line); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			}
		}
	}
}

func printMessage(selfUID string, m store.Message) {
	who := m.SenderID
	if m.SenderID == selfUID {
		who = "me"
	}
	state := ""
	if m.Pending {
		state = " (sending)"
	} else if m.Edited {
		state = " (edited)"
	}
	ts := time.UnixMilli(m.CreatedAt).Local().Format("15:04")
	fmt.Printf("[%s] %s: %s%s\n", ts, who, m.Body, state)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
