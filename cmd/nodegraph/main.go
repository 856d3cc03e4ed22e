// Command nodegraph validates and runs graph definitions and lists the
// history of past runs.
//
// Usage:
//
//	nodegraph validate <graph.yaml>
//	nodegraph run [-config settings.yaml] [-timeout 30s] [-json] <graph.yaml>
//	nodegraph history [-config settings.yaml] [-show run-id] <graph-name>
//	nodegraph types
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/catalog"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/config"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/graphdef"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/history"
	"github.com/randalmurphal/nodegraph/pkg/nodegraph/nodes"
)

// exitError carries a process exit code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.msg != "" {
				fmt.Fprintln(os.Stderr, exitErr.msg)
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

const usage = `Usage:
  nodegraph validate <graph.yaml>
  nodegraph run [-config settings.yaml] [-timeout 30s] [-json] <graph.yaml>
  nodegraph history [-config settings.yaml] [-show run-id] <graph-name>
  nodegraph types
`

// run dispatches a subcommand. Split from main for testing.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return &exitError{code: 2}
	}
	switch args[0] {
	case "validate":
		return cmdValidate(stdout, stderr, args[1:])
	case "run":
		return cmdRun(ctx, stdout, stderr, args[1:])
	case "history":
		return cmdHistory(stdout, stderr, args[1:])
	case "types":
		return cmdTypes(stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return &exitError{code: 2, msg: fmt.Sprintf("unknown command %q", args[0])}
	}
}

func newCatalog() (*catalog.Catalog, error) {
	c := catalog.New()
	if err := nodes.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// loadGraph reads, builds and validates a definition file.
func loadGraph(path string) (*nodegraph.Graph, error) {
	def, err := graphdef.Load(path)
	if err != nil {
		return nil, err
	}
	c, err := newCatalog()
	if err != nil {
		return nil, err
	}
	g, err := graphdef.Build(def, c)
	if err != nil {
		return nil, fmt.Errorf("build %s:\n%w", def.Name, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s:\n%w", def.Name, err)
	}
	return g, nil
}

func loadSettings(path string) (config.Settings, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func cmdValidate(stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 2}
	}
	if fs.NArg() != 1 {
		return &exitError{code: 2, msg: "validate: expected one graph file"}
	}

	g, err := loadGraph(fs.Arg(0))
	if err != nil {
		return err
	}
	layers, err := g.Layers()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: ok (%d nodes, %d connections, %d layers)\n",
		g.Name(), len(g.NodeIDs()), len(g.Connections()), len(layers))
	for i, layer := range layers {
		fmt.Fprintf(stdout, "  layer %d: %v\n", i, layer)
	}
	return nil
}

func cmdRun(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	settingsPath := fs.String("config", "", "settings file (.yaml or .json)")
	timeout := fs.Duration("timeout", 0, "cancel the run after this long")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	runID := fs.String("run-id", "", "run identifier (default: random UUID)")
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 2}
	}
	if fs.NArg() != 1 {
		return &exitError{code: 2, msg: "run: expected one graph file"}
	}

	settings, err := loadSettings(*settingsPath)
	if err != nil {
		return err
	}
	logger, err := settings.Logger(stderr)
	if err != nil {
		return err
	}
	store, err := settings.OpenHistory()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	g, err := loadGraph(fs.Arg(0))
	if err != nil {
		return err
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	opts := []nodegraph.RunOption{
		nodegraph.WithSettings(settings),
		nodegraph.WithLogger(logger),
		nodegraph.WithRunID(*runID),
	}
	if store != nil {
		opts = append(opts, nodegraph.WithHistory(store))
	}
	report, err := g.Run(ctx, opts...)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(stdout, report)
	}
	if !report.Success {
		return &exitError{code: 1}
	}
	return nil
}

func printReport(w io.Writer, report *nodegraph.ExecutionReport) {
	fmt.Fprintf(w, "run %s of %s: ", report.RunID, report.GraphName)
	if report.Success {
		fmt.Fprintf(w, "succeeded in %s\n", report.Duration.Round(time.Microsecond))
	} else {
		fmt.Fprintf(w, "incomplete after %s\n", report.Duration.Round(time.Microsecond))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tNODE\tSTATUS\tDURATION\tDETAIL")
	for i, layer := range report.Layers {
		for _, id := range layer {
			status := report.StatusOf(id)
			detail, duration := "", ""
			if res, ok := report.Result(id); ok {
				duration = res.Duration.Round(time.Microsecond).String()
				if res.Err != nil {
					detail = res.Err.Error()
				} else {
					detail = formatOutputs(res)
				}
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, id, status, duration, detail)
		}
	}
	tw.Flush()
}

func formatOutputs(res nodegraph.NodeResult) string {
	out := res.Outputs()
	s := ""
	for _, name := range sortedNames(out) {
		if s != "" {
			s += " "
		}
		s += name + "=" + out[name].String()
	}
	return s
}

func cmdHistory(stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	settingsPath := fs.String("config", "", "settings file (.yaml or .json)")
	show := fs.String("show", "", "print the stored report of this run")
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 2}
	}

	settings, err := loadSettings(*settingsPath)
	if err != nil {
		return err
	}
	store, err := settings.OpenHistory()
	if err != nil {
		return err
	}
	if store == nil {
		return &exitError{code: 2, msg: "history: no history driver configured"}
	}
	defer store.Close()

	if *show != "" {
		rec, err := store.Load(*show)
		if errors.Is(err, history.ErrNotFound) {
			return &exitError{code: 1, msg: fmt.Sprintf("history: run %s not found", *show)}
		}
		if err != nil {
			return err
		}
		_, err = stdout.Write(append(rec.Data, '\n'))
		return err
	}

	if fs.NArg() != 1 {
		return &exitError{code: 2, msg: "history: expected a graph name"}
	}
	infos, err := store.List(fs.Arg(0))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSUCCESS\tSIZE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\n", info.RunID,
			info.StartedAt.Local().Format(time.RFC3339), info.Duration.Round(time.Microsecond),
			info.Success, info.Size)
	}
	return tw.Flush()
}

func cmdTypes(stdout io.Writer) error {
	c, err := newCatalog()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCATEGORY\tINPUTS\tOUTPUTS\tDESCRIPTION")
	for _, t := range c.Types() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Name, t.Category,
			portList(t.Inputs), portList(t.Outputs), t.Description)
	}
	return tw.Flush()
}

func portList(ports []nodegraph.PortSpec) string {
	s := ""
	for i, p := range ports {
		if i > 0 {
			s += ", "
		}
		s += p.Name + ":" + p.Type.String()
	}
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	// Quiet the default logger until settings configure one.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
}
