// Package main is the entrypoint for plugind, the plugin operation registry and dispatcher.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/plugin-registry/internal/config"
	"github.com/morezero/plugin-registry/internal/server"
	"github.com/morezero/plugin-registry/pkg/commsutil"
	"github.com/morezero/plugin-registry/pkg/db"
	"github.com/morezero/plugin-registry/pkg/dispatcher"
	"github.com/morezero/plugin-registry/pkg/registry"
)

const usage = `Usage: plugind [command]
       plugind serve                         Start plugind (COMMS invoke subject, HTTP, optional audit DB).
       plugind list [group]                  List registered groups and operations.
       plugind describe <operation>          Print an operation's parameters and schemas as JSON.
       plugind invoke <operation> [args] [timeout]
                                             Invoke an operation in-process. args is a JSON object,
                                             timeout a Go duration (e.g. 500ms, 5s).
       plugind migrate up|status|down        Manage the audit database schema.
       plugind audit recent [limit] [operation]
                                             Show recent invocations from the audit log.
       plugind audit failed [limit]          Show recent failed invocations.
       plugind audit stats                   Show per-operation call counts and mean duration.
       plugind audit prune <age>             Delete audit rows older than age (e.g. 720h).
       plugind audit clear                   Truncate the audit log; schema is preserved.
       plugind ensure-db [name]              Create database if missing (default: plugind_test). Uses DATABASE_URL host/user.

Environment: COMMS_URL, PLUGIN_MANIFEST_FILE, DATABASE_URL (audit log, optional for serve),
MIGRATION_PATH, HTTP_ADDR / HTTP_PORT, REQUEST_TIMEOUT, DEFAULT_INVOKE_TIMEOUT, LOG_LEVEL.
`

// errUsage marks command-line mistakes; main prints usage for them.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n%s", err, usage)
			os.Exit(2)
		}
		log.Fatalf("plugind: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve", "":
		return server.Run()
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	case "list":
		group := ""
		if len(args) > 1 {
			group = args[1]
		}
		return runList(out, group)
	case "describe":
		if len(args) < 2 {
			return fmt.Errorf("%w: describe requires an operation", errUsage)
		}
		return runDescribe(out, args[1])
	case "invoke":
		if len(args) < 2 {
			return fmt.Errorf("%w: invoke requires an operation", errUsage)
		}
		return runInvoke(out, args[1], optionalArg(args, 2), optionalArg(args, 3))
	case "migrate":
		if len(args) < 2 {
			return fmt.Errorf("%w: migrate requires a subcommand (up, status, down)", errUsage)
		}
		return runMigrate(out, args[1])
	case "audit":
		if len(args) < 2 {
			return fmt.Errorf("%w: audit requires a subcommand (recent, failed, stats, prune, clear)", errUsage)
		}
		return runAudit(out, args[1], args[2:])
	case "ensure-db":
		name := "plugind_test"
		if len(args) > 1 && args[1] != "" {
			name = args[1]
		}
		return runEnsureDB(out, name)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// loadCLIConfig loads config and sends logs to stderr so command output stays parseable.
func loadCLIConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.SlogLevel()
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// newDispatcher builds the in-process registry and dispatcher the offline commands use.
func newDispatcher() (*dispatcher.Dispatcher, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	manifest, err := server.LoadManifest(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := server.BuildRegistry(manifest)
	if err != nil {
		return nil, err
	}
	return server.NewDispatcher(cfg, reg, manifest, nil), nil
}

func runList(out io.Writer, group string) error {
	disp, err := newDispatcher()
	if err != nil {
		return err
	}
	reg := disp.Registry()

	groups := reg.Groups()
	if group != "" {
		info, ok := reg.Group(group)
		if !ok {
			return registry.Errorf(registry.KindOperationNotFound, "Group not found: %s", group)
		}
		groups = []registry.GroupInfo{info}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		fmt.Fprintf(tw, "%s@%s\t%s\n", g.Name, g.Version, g.Description)
		for _, name := range g.Operations {
			d, err := reg.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "  %s\t%s\t-> %s\n", d.FullName(), signature(d), d.Returns)
		}
	}
	return tw.Flush()
}

// signature renders parameters as "name:type", optional ones with a trailing "?".
func signature(d registry.OperationDescriptor) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range d.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name + ":" + string(p.Type))
		if !p.Required {
			b.WriteByte('?')
		}
	}
	b.WriteByte(')')
	return b.String()
}

func runDescribe(out io.Writer, name string) error {
	disp, err := newDispatcher()
	if err != nil {
		return err
	}
	resp := disp.Dispatch(context.Background(), &dispatcher.Request{Method: "describe", Operation: name})
	if !resp.Ok {
		return printJSON(out, resp)
	}
	return printJSON(out, resp.Result)
}

// runInvoke prints the response envelope and returns an error when the invocation failed.
func runInvoke(out io.Writer, name, rawArgs, rawTimeout string) error {
	var bag map[string]interface{}
	if rawArgs != "" {
		if err := commsutil.DecodePayload([]byte(rawArgs), &bag); err != nil {
			return fmt.Errorf("%w: args must be a JSON object: %v", errUsage, err)
		}
	}
	var timeout time.Duration
	if rawTimeout != "" {
		d, err := time.ParseDuration(rawTimeout)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: invalid timeout %q", errUsage, rawTimeout)
		}
		timeout = d
	}

	disp, err := newDispatcher()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp := disp.Dispatch(ctx, &dispatcher.Request{
		Method:    "invoke",
		Operation: name,
		Args:      bag,
		Ctx:       &dispatcher.InvocationContext{TimeoutMs: int(timeout / time.Millisecond)},
	})
	if err := printJSON(out, resp); err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("invoke %s: %s: %s", name, resp.Error.Code, resp.Error.Message)
	}
	return nil
}

func runMigrate(out io.Writer, sub string) error {
	switch sub {
	case "up", "status", "down":
	default:
		return fmt.Errorf("%w: unknown migrate subcommand %q (use up, status, down)", errUsage, sub)
	}
	cfg, pool, err := openDB()
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx := context.Background()

	switch sub {
	case "up":
		migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		fmt.Fprintf(out, "Applied migrations from %s\n", cfg.MigrationPath)
		return nil
	case "status":
		return db.MigrationStatus(ctx, pool, cfg.MigrationPath, out)
	default:
		return db.MigrationDown(ctx, pool, out)
	}
}

func runAudit(out io.Writer, sub string, rest []string) error {
	switch sub {
	case "recent", "failed", "stats", "prune", "clear":
	default:
		return fmt.Errorf("%w: unknown audit subcommand %q", errUsage, sub)
	}
	params := db.ListInvocationsParams{OnlyFailed: sub == "failed"}
	if sub == "recent" || sub == "failed" {
		if raw := optionalArg(rest, 0); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: invalid limit %q", errUsage, raw)
			}
			params.Limit = n
		}
		params.Operation = optionalArg(rest, 1)
	}
	var pruneAge time.Duration
	if sub == "prune" {
		raw := optionalArg(rest, 0)
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: prune requires a positive age, got %q", errUsage, raw)
		}
		pruneAge = d
	}

	_, pool, err := openDB()
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx := context.Background()
	repo := db.NewRepository(pool)

	switch sub {
	case "recent", "failed":
		rows, err := repo.ListInvocations(ctx, params)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tOPERATION\tOK\tDURATION\tERROR")
		for _, inv := range rows {
			errText := ""
			if inv.ErrorCode != nil {
				errText = *inv.ErrorCode
			}
			fmt.Fprintf(tw, "%s\t%s\t%v\t%dms\t%s\n", inv.Created.Format(time.RFC3339), inv.Operation, inv.Ok, inv.DurationMs, errText)
		}
		return tw.Flush()
	case "stats":
		stats, err := repo.OperationStats(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "OPERATION\tCALLS\tFAILURES\tAVG\tLAST")
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.1fms\t%s\n", s.Operation, s.Calls, s.Failures, s.AvgDurationMs, s.LastInvoked.Format(time.RFC3339))
		}
		return tw.Flush()
	case "prune":
		n, err := repo.PruneInvocations(ctx, time.Now().Add(-pruneAge))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d invocations\n", n)
		return nil
	default:
		if err := db.ClearInvocations(ctx, pool); err != nil {
			return fmt.Errorf("clear audit log: %w", err)
		}
		fmt.Fprintln(out, "Audit log cleared")
		return nil
	}
}

func runEnsureDB(out io.Writer, name string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Keep host, credentials and query (e.g. sslmode); swap the database name.
	u.Path = "/" + name
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %q is ready.\n", name)
	return nil
}

func openDB() (*config.Config, *pgxpool.Pool, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
