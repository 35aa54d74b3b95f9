package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/crowdlod/server/internal/client"
)

var (
	addr      string        // debug bridge address
	operator  string        // name reported in C_HELLO
	password  string        // debug password; CROWD_PASSWORD when empty
	format    string        // text, json or yaml
	toClip    bool          // copy output to the clipboard
	timeout   time.Duration // per request
	overheads []string      // overhead categories shown in text output
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "crowdctl",
	Short:         "Inspect a running crowd simulation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch format {
		case formatText, formatJSON, formatYAML:
		default:
			return fmt.Errorf("unknown format %q (text, json, yaml)", format)
		}
		if password == "" {
			password = os.Getenv("CROWD_PASSWORD")
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crowdctl:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&addr, "addr", "127.0.0.1:7400", "Debug bridge address")
	pf.StringVar(&operator, "operator", defaultOperator(), "Operator name sent at hello")
	pf.StringVar(&password, "password", "", "Debug password (default $CROWD_PASSWORD)")
	pf.StringVarP(&format, "format", "o", formatText, "Output format: text, json or yaml")
	pf.BoolVar(&toClip, "clipboard", false, "Also copy the output to the clipboard")
	pf.DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	pf.StringSliceVar(&overheads, "overhead", nil, "Overhead categories to print in text mode")

	rootCmd.AddCommand(statsCmd, selectCmd, regionCmd, radiusCmd, tagCmd, dumpCmd, pathCmd,
		categoriesCmd, toggleCmd, viewersCmd, pingCmd, hashPasswordCmd)
}

func defaultOperator() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "crowdctl"
}

// withClient dials, runs fn and says goodbye.
func withClient(fn func(c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c, err := client.Dial(ctx, addr, operator, password)
	if err != nil {
		return err
	}
	defer c.Close()
	c.SetTimeout(timeout)
	return fn(c)
}

// emit writes out to stdout and, with --clipboard, to the clipboard.
func emit(cmd *cobra.Command, out string) error {
	fmt.Fprint(cmd.OutOrStdout(), out)
	if !toClip {
		return nil
	}
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard not available on this system")
	}
	if err := clipboard.WriteAll(out); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "copied to clipboard")
	return nil
}
