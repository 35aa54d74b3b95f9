package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/crowdlod/server/internal/debug"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// render formats any reply value; snapshots get a table in text mode.
func render(v any) (string, error) {
	switch format {
	case formatJSON:
		if s, ok := v.(*debug.Snapshot); ok {
			b, err := debug.EncodeJSON(s)
			if err != nil {
				return "", err
			}
			return string(b) + "\n", nil
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b) + "\n", nil
	case formatYAML:
		b, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	switch t := v.(type) {
	case *debug.Snapshot:
		return snapshotText(t), nil
	case []string:
		if len(t) == 0 {
			return "(none)\n", nil
		}
		return strings.Join(t, "\n") + "\n", nil
	}
	return fmt.Sprintf("%v\n", v), nil
}

func snapshotText(s *debug.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick %s  query %s  agents %s\n",
		humanize.Comma(int64(s.Tick)), s.Query.Kind, humanize.Comma(int64(len(s.Agents))))
	if st := s.Stats; st != nil {
		statsText(&b, st)
	}
	if p := s.Path; p != nil {
		fmt.Fprintf(&b, "path %s  status %s  cursor %d  at (%.2f, %.2f)\n",
			p.Handle, p.Status, p.Cursor, float64(p.Position.X), float64(p.Position.Y))
		for i, wp := range p.Waypoints {
			fmt.Fprintf(&b, "  %3d  (%.2f, %.2f)\n", p.Cursor+i, float64(wp.X), float64(wp.Y))
		}
	}
	if len(s.Agents) > 0 {
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SLOT\tHANDLE\tTIER\tSTATE\tPOS\tSPEED\tSCORE\tTAGS")
		for i := range s.Agents {
			a := &s.Agents[i]
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t(%.2f, %.2f)\t%.2f\t%.3g\t%s\n",
				a.Slot, a.Handle, a.Tier, a.State,
				float64(a.Pos.X), float64(a.Pos.Y),
				a.Vel.Vec2().Len(), float64(a.Score),
				strings.Join(a.Tags, ","))
		}
		tw.Flush()
	}
	if len(overheads) > 0 {
		enabled := make(map[string]bool, len(overheads))
		for _, c := range overheads {
			enabled[c] = true
		}
		b.WriteString(debug.FormatOverhead(debug.Overhead(s, enabled)))
	}
	for _, h := range s.Missing {
		fmt.Fprintf(&b, "not found: %s\n", h)
	}
	return b.String()
}

func statsText(b *strings.Builder, st *debug.Stats) {
	fmt.Fprintf(b, "live     %s (pooled %s, pending destruction %s)\n",
		humanize.Comma(int64(st.Live)), humanize.Comma(int64(st.Pooled)), humanize.Comma(int64(st.PendingDestruction)))
	fmt.Fprintf(b, "tiers    high %s  medium %s  low %s  off %s\n",
		humanize.Comma(int64(st.Tiers.High)), humanize.Comma(int64(st.Tiers.Medium)),
		humanize.Comma(int64(st.Tiers.Low)), humanize.Comma(int64(st.Tiers.Off)))
	fmt.Fprintf(b, "spawned  %s (requests pending %s)\n",
		humanize.Comma(int64(st.Spawned)), humanize.Comma(int64(st.PendingRequests)))
	fmt.Fprintf(b, "lod      %s passes\n", humanize.Comma(int64(st.LODPasses)))
}
