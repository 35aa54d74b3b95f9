package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/crowdlod/server/internal/client"
	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/core/ecs"
	"github.com/crowdlod/server/internal/debug"
	"github.com/crowdlod/server/internal/handler"
)

// snapshotCmd builds a subcommand that prints one snapshot reply.
func snapshotCmd(use, short string, args cobra.PositionalArgs, query func(c *client.Client, args []string) (*debug.Snapshot, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *client.Client) error {
				s, err := query(c, args)
				if err != nil {
					return err
				}
				out, err := render(s)
				if err != nil {
					return err
				}
				return emit(cmd, out)
			})
		},
	}
}

var statsCmd = snapshotCmd("stats", "Print store-wide counters", cobra.NoArgs,
	func(c *client.Client, _ []string) (*debug.Snapshot, error) {
		return c.Stats()
	})

var selectCmd = snapshotCmd("select HANDLE", "Show one agent by handle (index:generation)", cobra.ExactArgs(1),
	func(c *client.Client, args []string) (*debug.Snapshot, error) {
		h, err := ecs.ParseEntityID(args[0])
		if err != nil {
			return nil, err
		}
		return c.Select(h)
	})

var regionCmd = snapshotCmd("region MINX MINY MAXX MAXY", "List agents inside a rectangle", cobra.ExactArgs(4),
	func(c *client.Client, args []string) (*debug.Snapshot, error) {
		v, err := parseFloats(args)
		if err != nil {
			return nil, err
		}
		return c.Region(component.Rect{
			Min: component.Vec2{X: v[0], Y: v[1]},
			Max: component.Vec2{X: v[2], Y: v[3]},
		})
	})

var radiusCmd = snapshotCmd("radius X Y R", "List agents within a radius", cobra.ExactArgs(3),
	func(c *client.Client, args []string) (*debug.Snapshot, error) {
		v, err := parseFloats(args)
		if err != nil {
			return nil, err
		}
		return c.Radius(component.Vec2{X: v[0], Y: v[1]}, v[2])
	})

var tagCmd = snapshotCmd("tag TAG", "List agents carrying a tag", cobra.ExactArgs(1),
	func(c *client.Client, args []string) (*debug.Snapshot, error) {
		return c.Tag(args[0])
	})

var dumpCmd = snapshotCmd("dump", "Dump every live agent", cobra.NoArgs,
	func(c *client.Client, _ []string) (*debug.Snapshot, error) {
		return c.Dump()
	})

var pathCmd = snapshotCmd("path HANDLE", "Show an agent's remaining waypoints", cobra.ExactArgs(1),
	func(c *client.Client, args []string) (*debug.Snapshot, error) {
		h, err := ecs.ParseEntityID(args[0])
		if err != nil {
			return nil, err
		}
		return c.Path(h)
	})

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the overhead categories enabled for a fresh session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			cats, err := c.Categories()
			if err != nil {
				return err
			}
			out, err := render(cats)
			if err != nil {
				return err
			}
			return emit(cmd, out)
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle CATEGORY on|off",
	Short: "Switch an overhead category and print the enabled set",
	Long: "Switch an overhead category (" + strings.Join(debug.Categories, ", ") + ").\n" +
		"The setting lives in the session, so this is mostly useful to check a server accepts it.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[1])
		if err != nil {
			return err
		}
		return withClient(func(c *client.Client) error {
			cats, err := c.Toggle(args[0], on)
			if err != nil {
				return err
			}
			out, err := render(cats)
			if err != nil {
				return err
			}
			return emit(cmd, out)
		})
	},
}

var viewersCmd = snapshotCmd("viewers X,Y [X,Y...]", "Replace the classifier's viewer positions", cobra.MinimumNArgs(1),
	func(c *client.Client, args []string) (*debug.Snapshot, error) {
		vs := make([]component.Vec2, 0, len(args))
		for _, a := range args {
			x, y, ok := strings.Cut(a, ",")
			if !ok {
				return nil, fmt.Errorf("viewer %q: want X,Y", a)
			}
			v, err := parseFloats([]string{x, y})
			if err != nil {
				return nil, err
			}
			vs = append(vs, component.Vec2{X: v[0], Y: v[1]})
		}
		return c.SetViewers(vs)
	})

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trips through the simulation loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *client.Client) error {
			var total time.Duration
			for i := 0; i < pingCount; i++ {
				rtt, tick, err := c.Ping(uint32(i + 1))
				if err != nil {
					return err
				}
				total += rtt
				fmt.Fprintf(cmd.OutOrStdout(), "seq=%d tick=%s time=%s\n", i+1, humanize.Comma(int64(tick)), rtt.Round(time.Microsecond))
			}
			if pingCount > 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "avg %s\n", (total / time.Duration(pingCount)).Round(time.Microsecond))
			}
			return nil
		})
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password PASSWORD",
	Short: "Print a bcrypt hash for debug.password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := handler.HashPassword(args[0])
		if err != nil {
			return err
		}
		return emit(cmd, hash+"\n")
	},
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 4, "Number of pings")
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}
