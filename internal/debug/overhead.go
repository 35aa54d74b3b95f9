package debug

import (
	"fmt"
	"math"
	"strings"
)

// Overhead categories a session can toggle.
const (
	CategoryMovement   = "movement"
	CategoryNavigation = "navigation"
	CategoryLOD        = "lod"
	CategoryLife       = "life"
)

// Categories lists every category in display order.
var Categories = []string{CategoryMovement, CategoryNavigation, CategoryLOD, CategoryLife}

// ValidCategory reports whether name is a known category.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// OverheadRow is one line of per-agent overlay text.
type OverheadRow struct {
	Category string `json:"category"`
	Handle   string `json:"handle"`
	Slot     int    `json:"slot"`
	Text     string `json:"text"`
}

// Overhead renders the enabled categories for every agent in s, grouped by
// category in display order, agents in snapshot order.
func Overhead(s *Snapshot, enabled map[string]bool) []OverheadRow {
	var rows []OverheadRow
	for _, cat := range Categories {
		if !enabled[cat] {
			continue
		}
		for i := range s.Agents {
			a := &s.Agents[i]
			rows = append(rows, OverheadRow{
				Category: cat,
				Handle:   a.Handle.String(),
				Slot:     a.Slot,
				Text:     overheadText(cat, a),
			})
		}
	}
	return rows
}

func overheadText(cat string, a *AgentView) string {
	switch cat {
	case CategoryMovement:
		speed := math.Hypot(float64(a.Vel.X), float64(a.Vel.Y))
		return fmt.Sprintf("pos=%s vel=%s speed=%.2f/%.2f %s",
			fmtPoint(a.Pos), fmtPoint(a.Vel), speed, float64(a.MaxSpeed), a.State)
	case CategoryNavigation:
		if a.Route == 0 {
			return "no path"
		}
		wp := "-"
		if a.HasWaypoint {
			wp = fmtPoint(a.Waypoint)
		}
		return fmt.Sprintf("route=%d@%d cursor=%d waypoint=%s", a.Route, a.Revision, a.Cursor, wp)
	case CategoryLOD:
		return fmt.Sprintf("tier=%s score=%.4g pass=%d", a.Tier, float64(a.Score), a.LastPass)
	case CategoryLife:
		tags := "-"
		if len(a.Tags) > 0 {
			tags = strings.Join(a.Tags, ",")
		}
		return fmt.Sprintf("seq=%d spawned@%d request=%d tags=%s", a.Seq, a.SpawnTick, a.RequestID, tags)
	}
	return ""
}

func fmtPoint(p Point) string {
	return fmt.Sprintf("(%.2f,%.2f)", float64(p.X), float64(p.Y))
}

// FormatOverhead renders rows as text, one block per category.
func FormatOverhead(rows []OverheadRow) string {
	var b strings.Builder
	last := ""
	for _, r := range rows {
		if r.Category != last {
			fmt.Fprintf(&b, "[%s]\n", r.Category)
			last = r.Category
		}
		fmt.Fprintf(&b, "  #%-4d %-10s %s\n", r.Slot, r.Handle, r.Text)
	}
	return b.String()
}
