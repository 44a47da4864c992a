package logging

import "strings"

// FormatSubject builds the group/target/stage subject string used in console output.
func FormatSubject(group, target, stage string) string {
	group = strings.TrimSpace(group)
	target = strings.TrimSpace(target)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 2)
	if group != "" {
		parts = append(parts, group)
	}
	switch {
	case target != "" && stage != "":
		parts = append(parts, target+" ("+stage+")")
	case target != "":
		parts = append(parts, target)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
