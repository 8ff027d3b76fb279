package robots

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// parseRobotsTxt parses a minimal robots.txt: User-agent/Disallow/Crawl-delay
// directives grouped by the preceding User-agent lines.
func parseRobotsTxt(r io.Reader) *rules {
	parsed := &rules{groups: make(map[string]*group)}
	var current []*group
	lastWasUserAgent := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "user-agent":
			if !lastWasUserAgent {
				current = nil
			}
			agent := strings.ToLower(val)
			g, exists := parsed.groups[agent]
			if !exists {
				g = &group{}
				parsed.groups[agent] = g
			}
			current = append(current, g)
			lastWasUserAgent = true
			continue
		case "disallow":
			for _, g := range current {
				g.disallow = append(g.disallow, val)
			}
		case "crawl-delay":
			if seconds, err := strconv.ParseFloat(val, 64); err == nil {
				for _, g := range current {
					g.crawlDelay = time.Duration(seconds * float64(time.Second))
				}
			}
		}
		lastWasUserAgent = false
	}

	if _, ok := parsed.groups["*"]; !ok {
		parsed.groups["*"] = &group{}
	}

	return parsed
}
