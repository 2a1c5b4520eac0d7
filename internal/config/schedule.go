package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ScheduleDef is one validated schedule: the definition as written in the
// config, and the normalized 5-field cron expression derived from it.
type ScheduleDef struct {
	Raw  string
	Cron string
}

// cronAliases expand before validation so the stored definition is always a
// plain 5-field expression.
var cronAliases = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// dictFields maps the mapping-form schedule keys to their 5-field position.
var dictFields = [...]string{"minute", "hour", "day", "month", "weekday"}

// parseScheduleNode accepts a schedule in either of the two supported forms:
// a scalar cron string (aliases allowed) or a mapping of minute, hour, day,
// month and weekday where omitted fields default to "*".
func parseScheduleNode(node *yaml.Node) (ScheduleDef, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := node.Decode(&raw); err != nil {
			return ScheduleDef{}, err
		}
		return parseScheduleString(raw)
	case yaml.MappingNode:
		var fields map[string]yaml.Node
		if err := node.Decode(&fields); err != nil {
			return ScheduleDef{}, err
		}
		return parseScheduleDict(fields)
	default:
		return ScheduleDef{}, fmt.Errorf("schedule must be a string or a mapping")
	}
}

func parseScheduleString(raw string) (ScheduleDef, error) {
	expr := strings.TrimSpace(raw)
	if alias, ok := cronAliases[strings.ToLower(expr)]; ok {
		expr = alias
	}
	if err := validateCron(expr); err != nil {
		return ScheduleDef{}, fmt.Errorf("invalid cron definition %q: %w", raw, err)
	}
	return ScheduleDef{Raw: raw, Cron: expr}, nil
}

func parseScheduleDict(fields map[string]yaml.Node) (ScheduleDef, error) {
	known := map[string]struct{}{}
	for _, f := range dictFields {
		known[f] = struct{}{}
	}
	for key := range fields {
		if _, ok := known[key]; !ok {
			return ScheduleDef{}, fmt.Errorf("unknown schedule field %q", key)
		}
	}

	parts := make([]string, len(dictFields))
	rawParts := make([]string, 0, len(fields))
	for i, field := range dictFields {
		parts[i] = "*"
		node, ok := fields[field]
		if !ok {
			continue
		}
		var value string
		if err := node.Decode(&value); err != nil {
			// Field values may be bare integers in YAML.
			var n int
			if err := node.Decode(&n); err != nil {
				return ScheduleDef{}, fmt.Errorf("schedule field %q is not a scalar", field)
			}
			value = fmt.Sprintf("%d", n)
		}
		parts[i] = strings.TrimSpace(value)
		rawParts = append(rawParts, fmt.Sprintf("%s: %s", field, parts[i]))
	}

	expr := strings.Join(parts, " ")
	if err := validateCron(expr); err != nil {
		return ScheduleDef{}, fmt.Errorf("invalid cron definition %q: %w", expr, err)
	}
	return ScheduleDef{Raw: "{" + strings.Join(rawParts, ", ") + "}", Cron: expr}, nil
}

func validateCron(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
