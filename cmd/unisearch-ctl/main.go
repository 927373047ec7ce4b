// Command unisearch-ctl triggers index runs and inspects a running unisearch server.
// It is meant for cron jobs and operators; the server's own scheduler is optional.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	chiTransport "github.com/kailas-cloud/unisearch/internal/transport/chi"
	"github.com/kailas-cloud/unisearch/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "unisearch-ctl",
		Usage:   "Operate a unisearch server over HTTP",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Server base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"UNISEARCH_ADDR"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Bearer API key",
				EnvVars: []string{"UNISEARCH_API_KEY"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout; full rebuilds can take a long time",
				Value: 65 * time.Minute,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "rebuild",
				Usage:  "Run a full rebuild of a scope and print its manifest",
				Flags:  []cli.Flag{scopeFlag(), tokenFlag()},
				Action: rebuildCommand,
			},
			{
				Name:      "update",
				Usage:     "Run an incremental update of one module and print its manifest",
				ArgsUsage: "<module>",
				Flags:     []cli.Flag{scopeFlag(), tokenFlag()},
				Action:    updateCommand,
			},
			{
				Name:  "manifest",
				Usage: "Show the live manifest, recent history and active runs of a scope",
				Flags: []cli.Flag{
					scopeFlag(),
					&cli.IntFlag{Name: "history", Usage: "Number of past generations to list", Value: 10},
				},
				Action: manifestCommand,
			},
			{
				Name:      "search",
				Usage:     "Run a unified query",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					tenantFlag(),
					&cli.StringFlag{Name: "user", Usage: "User id sent as " + chiTransport.HeaderUserID},
					&cli.StringSliceFlag{Name: "module", Aliases: []string{"m"}, Usage: "Restrict to module (repeatable)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results"},
					&cli.StringFlag{Name: "status", Usage: "Status filter"},
					&cli.StringFlag{Name: "priority", Usage: "Priority filter"},
				},
				Action: searchCommand,
			},
			{
				Name:  "suggest",
				Usage: "List popular queries starting with a prefix",
				Flags: []cli.Flag{
					tenantFlag(),
					&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Required: true},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}},
				},
				Action: suggestCommand,
			},
			{
				Name:   "health",
				Usage:  "Show component health",
				Action: healthCommand,
			},
		},
	}
}

// Flags used by more than one command.
func scopeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "scope",
		Usage: "Index scope: global or tenant:<id>",
		Value: "global",
	}
}

func tokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "token",
		Aliases: []string{"t"},
		Usage:   "Idempotency key; a repeated key returns the earlier run",
	}
}

func tenantFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:     "tenant",
		Usage:    "Tenant id sent as " + chiTransport.HeaderTenantID,
		Required: true,
	}
}

func clientFrom(c *cli.Context) *client {
	return newClient(c.String("addr"), c.String("api-key"), c.Duration("timeout"))
}

func rebuildCommand(c *cli.Context) error {
	params := url.Values{"scope": {c.String("scope")}}
	body, err := clientFrom(c).do(c.Context, http.MethodPost, "/api/v1/index/rebuild", params, nil, idempotency(c.String("token")))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, body)
}

func updateCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("update needs exactly one module name", 2)
	}
	path := "/api/v1/index/modules/" + url.PathEscape(c.Args().First()) + "/update"
	params := url.Values{"scope": {c.String("scope")}}
	body, err := clientFrom(c).do(c.Context, http.MethodPost, path, params, nil, idempotency(c.String("token")))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, body)
}

func manifestCommand(c *cli.Context) error {
	params := url.Values{
		"scope":   {c.String("scope")},
		"history": {strconv.Itoa(c.Int("history"))},
	}
	body, err := clientFrom(c).do(c.Context, http.MethodGet, "/api/v1/index/manifest", params, nil, nil)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, body)
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("search needs a query", 2)
	}
	cl := clientFrom(c)
	cl.tenant = strconv.FormatInt(c.Int64("tenant"), 10)
	cl.user = c.String("user")

	req := chiTransport.SearchRequest{
		Query:   strings.Join(c.Args().Slice(), " "),
		Modules: c.StringSlice("module"),
		Filters: query.Filters{Status: c.String("status"), Priority: c.String("priority")},
	}
	if c.IsSet("limit") {
		n := c.Int("limit")
		req.Limit = &n
	}
	body, err := cl.do(c.Context, http.MethodPost, "/api/v1/search", nil, req, nil)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, body)
}

func suggestCommand(c *cli.Context) error {
	cl := clientFrom(c)
	cl.tenant = strconv.FormatInt(c.Int64("tenant"), 10)

	params := url.Values{"prefix": {c.String("prefix")}}
	if n := c.Int("limit"); n > 0 {
		params.Set("limit", strconv.Itoa(n))
	}
	body, err := cl.do(c.Context, http.MethodGet, "/api/v1/suggest", params, nil, nil)
	if err != nil {
		return err
	}
	var resp chiTransport.SuggestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode suggestions: %w", err)
	}
	for _, s := range resp.Suggestions {
		fmt.Fprintln(c.App.Writer, s)
	}
	return nil
}

func healthCommand(c *cli.Context) error {
	body, err := clientFrom(c).do(c.Context, http.MethodGet, "/health", nil, nil, nil)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, body)
}

func printJSON(w io.Writer, body []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
