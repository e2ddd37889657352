/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rate is a shorthand for a window and a max requests number, written as "N/(s|m|h)" or "N/<duration>",
// for example "60/m" or "100/15m".
type Rate struct {
	Count    int
	Duration time.Duration
}

// ParseRate parses a rate value.
func ParseRate(s string) (Rate, error) {
	var r Rate
	err := r.unmarshal(s)
	return r, err
}

// IsZero reports whether the rate is not set.
func (r Rate) IsZero() bool {
	return r.Count == 0 && r.Duration == 0
}

// String returns the string representation of the rate.
func (r Rate) String() string {
	if r.IsZero() {
		return ""
	}
	var d string
	switch r.Duration {
	case time.Second:
		d = "s"
	case time.Minute:
		d = "m"
	case time.Hour:
		d = "h"
	default:
		d = r.Duration.String()
	}
	return fmt.Sprintf("%d/%s", r.Count, d)
}

// UnmarshalText allows decoding from text.
// Implements encoding.TextUnmarshaler, which is used by mapstructure.TextUnmarshallerHookFunc.
func (r *Rate) UnmarshalText(text []byte) error {
	return r.unmarshal(string(text))
}

// UnmarshalJSON allows decoding from JSON.
func (r *Rate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

// UnmarshalYAML allows decoding from YAML.
func (r *Rate) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	return r.unmarshal(text)
}

func (r *Rate) unmarshal(rate string) error {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		*r = Rate{}
		return nil
	}
	incorrectFormatErr := fmt.Errorf(
		"incorrect format for rate %q, should be N/(s|m|h) or N/<duration>, for example 10/s, 100/15m", rate)
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		return incorrectFormatErr
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return incorrectFormatErr
	}
	var dur time.Duration
	switch unit := strings.ToLower(strings.TrimSpace(parts[1])); unit {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		if dur, err = time.ParseDuration(unit); err != nil || dur <= 0 {
			return incorrectFormatErr
		}
	}
	*r = Rate{Count: count, Duration: dur}
	return nil
}

// MarshalText encodes as a string.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// MarshalJSON encodes as a string in JSON.
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// MarshalYAML encodes as a string in YAML.
func (r Rate) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}
