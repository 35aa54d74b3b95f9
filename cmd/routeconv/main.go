// routeconv converts a waypoint CSV export (route,x,y per line) to routes.yaml.
//
// Usage:
//
//	go run ./cmd/routeconv <waypoints.csv> <output.yaml>
//
// Waypoints keep their file order within a route; routes are sorted by name.
// A route whose name ends in "*" is written as a loop.
package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crowdlod/server/internal/component"
	"github.com/crowdlod/server/internal/data"
)

// Pattern: route_name, 12.5, -3   (quotes optional)
var rowRe = regexp.MustCompile(`^\s*"?([^",]+?)"?\s*,\s*(-?[\d.]+(?:[eE][-+]?\d+)?)\s*,\s*(-?[\d.]+(?:[eE][-+]?\d+)?)\s*$`)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: routeconv <waypoints.csv> <output.yaml>")
		os.Exit(1)
	}

	inFile, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer inFile.Close()

	routes, skipped, err := readRoutes(bufio.NewScanner(inFile))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	body, err := yaml.Marshal(routes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// Round-trip through the loader so a bad export fails here, not at server start.
	if _, err := data.ParseRouteTable(body); err != nil {
		fmt.Fprintln(os.Stderr, "generated routes do not load:", err)
		os.Exit(1)
	}

	header := fmt.Sprintf("# Route list, generated by routeconv from %s (%d routes)\n", os.Args[1], len(routes))
	if err := os.WriteFile(os.Args[2], append([]byte(header), body...), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d routes to %s (%d lines skipped)\n", len(routes), os.Args[2], skipped)
}

func readRoutes(scanner *bufio.Scanner) ([]data.RouteEntry, int, error) {
	byName := make(map[string]*data.RouteEntry)
	skipped := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		m := rowRe.FindStringSubmatch(line)
		if m == nil {
			skipped++ // header row or junk
			continue
		}
		x, errX := strconv.ParseFloat(m[2], 64)
		y, errY := strconv.ParseFloat(m[3], 64)
		if errX != nil || errY != nil {
			skipped++
			continue
		}
		name, loop := strings.CutSuffix(strings.TrimSpace(m[1]), "*")
		r := byName[name]
		if r == nil {
			r = &data.RouteEntry{Name: name}
			byName[name] = r
		}
		r.Loop = r.Loop || loop
		r.Waypoints = append(r.Waypoints, component.Vec2{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, err
	}

	out := make([]data.RouteEntry, 0, len(byName))
	for _, r := range byName {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, skipped, nil
}
