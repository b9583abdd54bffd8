package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration written as a Go duration string ("30m", "1s").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	if d == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := ParseDurationField("", s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%sinvalid duration %q: %w", prefix(path), raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%sduration must be >= 0", prefix(path))
	}
	return d, nil
}

func prefix(path string) string {
	if path == "" {
		return ""
	}
	return path + ": "
}
