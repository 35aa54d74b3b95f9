// snapconv reads archived crowd snapshots and converts snapshot payloads.
//
// Usage:
//
//	snapconv list  --driver sqlite --dsn data/archive.db [--limit 20]
//	snapconv show  --driver postgres --dsn postgres://... <id> [-o yaml]
//	snapconv convert <file> [-o json|yaml]   (zstd payload or JSON dump)
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/crowdlod/server/internal/config"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/persist"
)

var (
	driver string // archive driver, "sqlite" or "postgres"
	dsn    string // archive DSN or sqlite path
	limit  int    // rows for list
	output string // json or yaml
)

var rootCmd = &cobra.Command{
	Use:           "snapconv",
	Short:         "Inspect archived crowd snapshots",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd.Context(), func(ctx context.Context, a persist.Archive) error {
			infos, err := a.List(ctx, limit)
			if err != nil {
				return err
			}
			return writeList(cmd.OutOrStdout(), infos, time.Now())
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print one archived snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd.Context(), func(ctx context.Context, a persist.Archive) error {
			rec, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			snap, err := rec.Snapshot()
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), snap)
		})
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert FILE",
	Short: "Convert a zstd payload or JSON dump to JSON or YAML (- reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if args[0] == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}
		snap, err := decodePayload(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return writeSnapshot(cmd.OutOrStdout(), snap)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "snapconv:", err)
		os.Exit(1)
	}
}

func init() {
	for _, c := range []*cobra.Command{listCmd, showCmd} {
		c.Flags().StringVar(&driver, "driver", "sqlite", "Archive driver: sqlite or postgres")
		c.Flags().StringVar(&dsn, "dsn", "data/archive.db", "Archive DSN (sqlite file path or postgres URL)")
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Number of snapshots to list")
	for _, c := range []*cobra.Command{showCmd, convertCmd} {
		c.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	}
	rootCmd.AddCommand(listCmd, showCmd, convertCmd)
}

func withArchive(ctx context.Context, fn func(context.Context, persist.Archive) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	a, err := persist.Open(ctx, config.ArchiveConfig{Driver: driver, DSN: dsn, MaxOpenConns: 2}, zap.NewNop())
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("no archive driver given")
	}
	defer a.Close()
	return fn(ctx, a)
}

// decodePayload accepts either a zstd-compressed JSON payload or plain JSON.
func decodePayload(raw []byte) (*debug.Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return debug.DecodeJSON(trimmed)
	}
	plain, err := debug.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("not JSON and not a zstd payload: %w", err)
	}
	return debug.DecodeJSON(plain)
}

func writeSnapshot(w io.Writer, snap *debug.Snapshot) error {
	switch output {
	case "json":
		b, err := debug.EncodeJSON(snap)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output %q (json, yaml)", output)
}

func writeList(w io.Writer, infos []persist.ArchiveInfo, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTICK\tRECORDED\tLIVE\tHIGH\tMEDIUM\tLOW\tOFF")
	for _, in := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			in.ID, humanize.Comma(int64(in.Tick)), humanize.RelTime(in.RecordedAt, now, "ago", "from now"),
			humanize.Comma(int64(in.Live)),
			in.Tiers.High, in.Tiers.Medium, in.Tiers.Low, in.Tiers.Off)
	}
	return tw.Flush()
}
