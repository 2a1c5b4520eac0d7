// Package config parses the per-project declarative configuration
// (askanna.yml) found inside an uploaded code package: jobs, their commands,
// schedules, environments and notification rules.
package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Reserved top-level keys that never name a job.
var reservedKeys = map[string]struct{}{
	"askanna":       {},
	"cluster":       {},
	"environment":   {},
	"image":         {},
	"job":           {},
	"project":       {},
	"push-target":   {},
	"notifications": {},
	"timezone":      {},
	"variables":     {},
	"worker":        {},
}

// Environment names the container image a job runs in, with optional
// registry credentials.
type Environment struct {
	Image       string       `yaml:"image"`
	Credentials *Credentials `yaml:"credentials"`
}

// Credentials are registry credentials for a private image.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NotificationTarget is the recipient list for one level.
type NotificationTarget struct {
	Email []string `yaml:"email"`
}

// Notifications groups recipient lists by level.
type Notifications struct {
	All   NotificationTarget `yaml:"all"`
	Error NotificationTarget `yaml:"error"`
}

// Job is one parsed job spec.
type Job struct {
	Name          string
	Commands      []string
	Environment   *Environment
	Schedules     []ScheduleDef
	Notifications Notifications
	Timezone      string
}

// Config is the parsed askanna.yml.
type Config struct {
	Timezone      string
	Environment   *Environment
	Notifications Notifications
	Jobs          map[string]Job
}

// rawJob mirrors the YAML shape of a job block. The command list historically
// lives under the "job" key; "commands" is accepted as the newer synonym.
type rawJob struct {
	Job           []string      `yaml:"job"`
	Commands      []string      `yaml:"commands"`
	Environment   *Environment  `yaml:"environment"`
	Schedule      []yaml.Node   `yaml:"schedule"`
	Notifications Notifications `yaml:"notifications"`
	Timezone      string        `yaml:"timezone"`
}

// Parse reads askanna.yml content. defaultTimezone applies when the config
// declares no valid global timezone. Parse is deliberately tolerant: invalid
// schedules are dropped with a log line, unknown keys are ignored, and only
// a malformed YAML document is an error.
func Parse(content []byte, defaultTimezone string) (*Config, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{
		Timezone: defaultTimezone,
		Jobs:     make(map[string]Job),
	}

	if node, ok := doc["timezone"]; ok {
		var tz string
		if err := node.Decode(&tz); err == nil && validTimezone(tz) {
			cfg.Timezone = tz
		} else {
			log.Warn().Str("timezone", tz).Msg("Invalid global timezone, using default")
		}
	}

	if node, ok := doc["environment"]; ok {
		var env Environment
		if err := node.Decode(&env); err == nil {
			cfg.Environment = &env
		}
	}

	if node, ok := doc["notifications"]; ok {
		var n Notifications
		if err := node.Decode(&n); err == nil {
			cfg.Notifications = n
		}
	}

	for name, node := range doc {
		if _, reserved := reservedKeys[name]; reserved {
			continue
		}
		if node.Kind != yaml.MappingNode {
			continue
		}

		var raw rawJob
		if err := node.Decode(&raw); err != nil {
			log.Warn().Str("job", name).Err(err).Msg("Skipping unparsable job block")
			continue
		}

		job := Job{
			Name:          name,
			Commands:      raw.Commands,
			Environment:   raw.Environment,
			Notifications: mergeNotifications(cfg.Notifications, raw.Notifications),
			Timezone:      cfg.Timezone,
		}
		if len(job.Commands) == 0 {
			job.Commands = raw.Job
		}
		if raw.Timezone != "" {
			if validTimezone(raw.Timezone) {
				job.Timezone = raw.Timezone
			} else {
				log.Warn().Str("job", name).Str("timezone", raw.Timezone).Msg("Invalid job timezone, using global")
			}
		}

		for _, schedNode := range raw.Schedule {
			def, err := parseScheduleNode(&schedNode)
			if err != nil {
				// Robustness over strictness: a broken schedule must not make
				// the project unimportable.
				log.Warn().Str("job", name).Err(err).Msg("Dropping invalid schedule")
				continue
			}
			job.Schedules = append(job.Schedules, def)
		}

		cfg.Jobs[name] = job
	}

	return cfg, nil
}

// mergeNotifications unions global and job recipient lists per level.
func mergeNotifications(global, job Notifications) Notifications {
	return Notifications{
		All:   NotificationTarget{Email: unionStrings(global.All.Email, job.All.Email)},
		Error: NotificationTarget{Email: unionStrings(global.Error.Email, job.Error.Email)},
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func validTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
