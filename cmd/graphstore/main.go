// Command graphstore loads a schema and a set of records into a registry and
// reports on the resulting graph. It is the smallest host for the runtime
// assembled by pkg/bootstrap.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"graphstore/pkg/bootstrap"
	"graphstore/pkg/config"
	"graphstore/pkg/graph"
	"graphstore/pkg/observability"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

// cli runs the command tree and maps the outcome to an exit code: 0 on
// success, 1 on a failed run, 2 on a usage error.
func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	cmd, err := root.ExecuteC()
	if err == nil {
		return 0
	}
	if _, usage := err.(usageError); usage {
		if cmd == nil {
			cmd = root
		}
		_, _ = fmt.Fprintf(stderr, "%v\n%s", err, cmd.UsageString())
		return 2
	}
	_, _ = fmt.Fprintf(stderr, "graphstore: %v\n", err)
	return 1
}

type usageError struct{ error }

type flags struct {
	configPath string
	schemaPath string
	seedPath   string
	replayPath string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "graphstore",
		Short:         "Load and inspect normalized record graphs",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file (yaml)")
	pf.StringVar(&f.schemaPath, "schema", "", "schema file (yaml or hcl), overrides schema.path")
	pf.StringVar(&f.seedPath, "seed", "", "JSON array of records to load")
	pf.StringVar(&f.replayPath, "replay", "", "patch journal to replay after seeding")

	root.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Load the graph and print record counts per type",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := open(f, stderr)
				if err != nil {
					return err
				}
				defer func() { _ = rt.Close() }()
				return printCounts(cmd.OutOrStdout(), rt.Registry)
			},
		},
		&cobra.Command{
			Use:   "dump",
			Short: "Load the graph and print it as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := open(f, stderr)
				if err != nil {
					return err
				}
				defer func() { _ = rt.Close() }()
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rt.Registry)
			},
		},
	)
	return root
}

func open(f flags, logW io.Writer) (*bootstrap.Runtime, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.schemaPath != "" {
		cfg.Schema.Path = f.schemaPath
	}

	var seed []map[string]any
	if f.seedPath != "" {
		if seed, err = readSeed(f.seedPath); err != nil {
			return nil, err
		}
	}
	rt, err := bootstrap.Open(cfg, bootstrap.WithLogWriter(logW), bootstrap.WithSeed(seed))
	if err != nil {
		return nil, err
	}
	if f.replayPath != "" {
		if err := replay(rt.Registry, f.replayPath); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func readSeed(path string) (seed []map[string]any, err error) {
	file, err := os.Open(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close seed: %w", cerr)
		}
	}()
	if err := json.NewDecoder(file).Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

func replay(reg *graph.Registry, path string) error {
	file, err := os.Open(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	defer func() { _ = file.Close() }()
	entries, err := observability.ReadJournal(file)
	if err != nil {
		return err
	}
	return observability.Replay(reg, entries)
}

func printCounts(w io.Writer, reg *graph.Registry) error {
	for _, typ := range reg.Types() {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", typ, reg.Count(typ)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total\t%d\n", reg.Len())
	return err
}
