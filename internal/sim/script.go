// Package sim runs scripted duels against a manual clock so combat timing can
// be replayed deterministically.
package sim

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/thraizz/yomi-server-go/internal/game"
	"github.com/thraizz/yomi-server-go/internal/game/combat"
	"gopkg.in/yaml.v3"
)

// Script is a duel: who fights, what they do and when, and how long to run.
type Script struct {
	Name       string    `yaml:"name"`
	Seed       uint64    `yaml:"seed,omitempty"` // overrides the configured seed when set
	Fighters   []Fighter `yaml:"fighters"`
	Steps      []Step    `yaml:"steps"`
	RunUntilMS int64     `yaml:"run_until_ms"`
}

// Fighter is a participant and its skill ranks.
type Fighter struct {
	ID    string                   `yaml:"id"`
	Ranks map[combat.Skill]float64 `yaml:"ranks,omitempty"`
}

// Step is one intent issued at AtMS milliseconds into the duel.
type Step struct {
	AtMS        int64 `yaml:"at_ms"`
	game.Action `yaml:",inline"`
}

// LoadScript reads and validates a YAML script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i := range s.Steps {
		s.Steps[i].ActionType = strings.ToUpper(strings.TrimSpace(s.Steps[i].ActionType))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the script is runnable.
func (s *Script) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Fighters) == 0 {
		errs = append(errs, errors.New("at least one fighter is required"))
	}
	seen := make(map[string]bool, len(s.Fighters))
	for _, f := range s.Fighters {
		if f.ID == "" {
			errs = append(errs, errors.New("fighter id is required"))
			continue
		}
		if seen[f.ID] {
			errs = append(errs, fmt.Errorf("fighter %s listed twice", f.ID))
		}
		seen[f.ID] = true
	}
	if s.RunUntilMS <= 0 {
		errs = append(errs, errors.New("run_until_ms must be positive"))
	}
	for i, step := range s.Steps {
		if step.AtMS < 0 || step.AtMS > s.RunUntilMS {
			errs = append(errs, fmt.Errorf("step %d: at_ms %d outside [0, %d]", i, step.AtMS, s.RunUntilMS))
		}
		switch step.ActionType {
		case game.ActionAttack:
			if step.Target == "" {
				errs = append(errs, fmt.Errorf("step %d: attack needs a target", i))
			}
		case game.ActionBlock, game.ActionCancel:
		default:
			errs = append(errs, fmt.Errorf("step %d: unknown action %q", i, step.ActionType))
		}
	}
	return errors.Join(errs...)
}
