// Command inkctl is a CLI client for the Inkwell blog-post API.
//
// Guarded commands send the API key as a bearer token together with
// the client id header; the server's auth gate decides whether the
// request is allowed and charges the caller's quota. On denial the
// command prints the server's message and exits non-zero.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/inkwell-io/inkwell/internal/config"
	"github.com/inkwell-io/inkwell/internal/token"
)

func usage() {
	fmt.Fprintf(os.Stderr, `inkctl - Inkwell blog post CLI client

Usage:
  inkctl <command> [flags]

Commands:
  list    List blog posts (--limit, --offset)
  get     Retrieve a post by id (--post-id)
  create  Create a post (--body '{"userId":1,"title":"...","body":"..."}')
  update  Update a post (--post-id, --body '{"title":"...","body":"..."}')
  delete  Delete a post (--post-id)
  users   List users with their usage counters (--limit, --offset)
  key     Generate an API key (--user-id, --quota, --expiry)

Connection flags (also read from environment):
  --addr       Server address (INKWELL_ADDR, default http://localhost:8080)
  --token      API key bearer token (INKWELL_API_KEY)
  --client-id  Client id sent in the X-Api-Client-Id header (INKWELL_CLIENT_ID)

The key command signs locally and needs JWT_SECRET (and optionally
JWT_ISSUER, JWT_AUDIENCE) in the environment instead of a server.
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = cmdList(os.Args[2:])
	case "get":
		err = cmdGet(os.Args[2:])
	case "create":
		err = cmdCreate(os.Args[2:])
	case "update":
		err = cmdUpdate(os.Args[2:])
	case "delete":
		err = cmdDelete(os.Args[2:])
	case "users":
		err = cmdUsers(os.Args[2:])
	case "key":
		err = cmdKey(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ---- connection settings ----

type conn struct {
	addr     string
	token    string
	clientID string
}

func connFlags(fs *flag.FlagSet) *conn {
	c := &conn{}
	fs.StringVar(&c.addr, "addr", envOr("INKWELL_ADDR", "http://localhost:8080"), "server address")
	fs.StringVar(&c.token, "token", os.Getenv("INKWELL_API_KEY"), "API key bearer token")
	fs.StringVar(&c.clientID, "client-id", os.Getenv("INKWELL_CLIENT_ID"), "client id header value")
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiResponse is the server's {status, message, item(s)} envelope
type apiResponse struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Item    json.RawMessage `json:"item"`
	Items   json.RawMessage `json:"items"`
}

// do sends one authenticated request and decodes the envelope. Any
// non-2xx response is returned as an error carrying the server's
// message, which makes the command exit non-zero.
func (c *conn) do(method, path string, query url.Values, body any) (*apiResponse, error) {
	u := c.addr + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.clientID != "" {
		req.Header.Set("X-Api-Client-Id", c.clientID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, raw)
	}

	if resp.StatusCode >= 400 {
		if out.Message != "" {
			return nil, fmt.Errorf("%s (status %d)", out.Message, resp.StatusCode)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return &out, nil
}

// ---- post commands ----

type postItem struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	UserID    int64  `json:"userId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_date"`
	UpdatedAt string `json:"updated_date"`
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	c := connFlags(fs)
	limit := fs.Int("limit", 10, "maximum number of posts")
	offset := fs.Int("offset", 0, "number of posts to skip")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(*limit))
	q.Set("offset", strconv.Itoa(*offset))

	resp, err := c.do(http.MethodGet, "/api/v1/posts", q, nil)
	if err != nil {
		return err
	}

	var items []postItem
	if err := json.Unmarshal(resp.Items, &items); err != nil {
		return fmt.Errorf("decode posts: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No post available")
		return nil
	}

	fmt.Println("LIST POSTS")
	fmt.Println()
	for _, item := range items {
		fmt.Printf("[%d]\t%s\n", item.ID, item.Title)
	}
	fmt.Println()
	fmt.Println(`To read a post, run: "inkctl get --post-id=<n>"`)
	return nil
}

func cmdGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	c := connFlags(fs)
	postID := fs.Int64("post-id", 0, "id of the post to retrieve")
	fs.Parse(args)

	if *postID <= 0 {
		return fmt.Errorf("invalid post id: %d", *postID)
	}

	resp, err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", *postID), nil, nil)
	if err != nil {
		return err
	}

	var item postItem
	if err := json.Unmarshal(resp.Item, &item); err != nil {
		return fmt.Errorf("decode post: %w", err)
	}

	fmt.Println(item.Title)
	fmt.Println(item.Body)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "User Id\tPost Id\tCreated\tUpdated")
	fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", item.UserID, item.ID, item.CreatedAt, item.UpdatedAt)
	return w.Flush()
}

type postBody struct {
	UserID *int64  `json:"userId"`
	Title  *string `json:"title"`
	Body   *string `json:"body"`
}

func cmdCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	c := connFlags(fs)
	body := fs.String("body", "", `JSON post body: {"userId":1,"title":"...","body":"..."}`)
	fs.Parse(args)

	if *body == "" {
		return fmt.Errorf("invalid post body")
	}

	var item postBody
	if err := json.Unmarshal([]byte(*body), &item); err != nil {
		return fmt.Errorf("invalid post json body: %w", err)
	}
	if item.UserID == nil || item.Title == nil || item.Body == nil {
		return fmt.Errorf(`post body requires "userId", "title" and "body" fields`)
	}

	resp, err := c.do(http.MethodPost, "/api/v1/posts/create", nil, map[string]any{
		"userId": *item.UserID,
		"title":  *item.Title,
		"body":   *item.Body,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.Message)
	return nil
}

func cmdUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	c := connFlags(fs)
	postID := fs.Int64("post-id", 0, "id of the post to update")
	body := fs.String("body", "", `JSON update body: {"title":"...","body":"..."}`)
	fs.Parse(args)

	if *postID <= 0 {
		return fmt.Errorf("invalid post id: %d", *postID)
	}
	if *body == "" {
		return fmt.Errorf("invalid post body")
	}

	var item postBody
	if err := json.Unmarshal([]byte(*body), &item); err != nil {
		return fmt.Errorf("invalid post json body: %w", err)
	}
	if item.Title == nil && item.Body == nil {
		fmt.Printf("Nothing to update on post id: %d.\n", *postID)
		return nil
	}

	update := map[string]any{}
	if item.Title != nil {
		update["title"] = *item.Title
	}
	if item.Body != nil {
		update["body"] = *item.Body
	}

	resp, err := c.do(http.MethodPut, fmt.Sprintf("/api/v1/posts/update/%d", *postID), nil, update)
	if err != nil {
		return err
	}

	fmt.Println(resp.Message)
	return nil
}

func cmdDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	c := connFlags(fs)
	postID := fs.Int64("post-id", 0, "id of the post to delete")
	fs.Parse(args)

	if *postID <= 0 {
		return fmt.Errorf("invalid post id: %d", *postID)
	}

	resp, err := c.do(http.MethodDelete, fmt.Sprintf("/api/v1/posts/delete/%d", *postID), nil, nil)
	if err != nil {
		return err
	}

	fmt.Println(resp.Message)
	return nil
}

// ---- user commands ----

type userItem struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	APIUsageQuota int64  `json:"api_usage_quota"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func cmdUsers(args []string) error {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	c := connFlags(fs)
	limit := fs.Int("limit", 10, "maximum number of users")
	offset := fs.Int("offset", 0, "number of users to skip")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(*limit))
	q.Set("offset", strconv.Itoa(*offset))

	resp, err := c.do(http.MethodGet, "/api/v1/users", q, nil)
	if err != nil {
		return err
	}

	var items []userItem
	if err := json.Unmarshal(resp.Items, &items); err != nil {
		return fmt.Errorf("decode users: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No user available")
		return nil
	}

	fmt.Println("LIST USERS")
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Id\tUsage\tName\tEmail\tJoined\tAccessed")
	for _, u := range items {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			u.ID, u.APIUsageQuota, u.Name, u.Email, u.CreatedAt, u.UpdatedAt)
	}
	return w.Flush()
}

// ---- key command ----

func cmdKey(args []string) error {
	fs := flag.NewFlagSet("key", flag.ExitOnError)
	userID := fs.String("user-id", "", "user id the key is issued for")
	quota := fs.Int64("quota", 0, "usage ceiling for the key (0 = unlimited, default random)")
	expiry := fs.Int64("expiry", 2592000, "key lifetime in seconds")
	fs.Parse(args)

	if *userID == "" {
		return fmt.Errorf("--user-id is required")
	}
	if !flagWasSet(fs, "quota") {
		*quota = rand.Int63n(99999) + 1
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	codec := token.NewCodec(&cfg.JWT)
	key, err := codec.Encode(*userID, *quota, time.Duration(*expiry)*time.Second)
	if err != nil {
		return fmt.Errorf("generate API key: %w", err)
	}

	fmt.Println("API key was successfully generated")
	fmt.Println("Copy the key to use in http request authentication bearer header token.")
	fmt.Printf("User Id: %s\nQuota: %d\nAPI Key: %s\n", *userID, *quota, key)
	return nil
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
