package space

import (
	"fmt"

	"github.com/spacehost/spacesync/internal/model"
)

// Result is the outcome of running the sanitizer over a candidate config.
// Either Valid is true and Config holds the typed configuration, or Reason
// says what was malformed. The sanitizer never partially accepts.
type Result struct {
	Valid  bool
	Config model.TabConfig
	Reason string
}

func invalid(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

func plainObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// Policy controls how the isPrivate flag is coerced to a boolean.
type Policy struct {
	// RequireIsPrivate rejects configs whose isPrivate is present but not a
	// boolean instead of silently coercing it.
	RequireIsPrivate bool
	// DefaultIsPrivate is the value used when isPrivate is absent or coerced.
	DefaultIsPrivate bool
}

// Sanitize structurally validates a raw tab config candidate. All checks are
// total and side-effect free; a candidate either maps cleanly onto
// model.TabConfig or is rejected with a reason.
func Sanitize(candidate any, pol Policy) Result {
	root, ok := plainObject(candidate)
	if !ok {
		return invalid("config is not an object")
	}

	datumsRaw, ok := root["fidgetInstanceDatums"]
	if !ok {
		return invalid("missing fidgetInstanceDatums")
	}
	datums, ok := plainObject(datumsRaw)
	if !ok {
		return invalid("fidgetInstanceDatums is not an object")
	}
	for id, d := range datums {
		dm, ok := plainObject(d)
		if !ok {
			return invalid("fidget %q is not an object", id)
		}
		if _, ok := plainObject(dm["config"]); !ok {
			return invalid("fidget %q has no config object", id)
		}
	}

	cfg := model.TabConfig{FidgetInstanceDatums: datums}

	if v, ok := root["layoutDetails"]; ok {
		m, ok := plainObject(v)
		if !ok {
			return invalid("layoutDetails is not an object")
		}
		cfg.LayoutDetails = m
	}
	if v, ok := root["theme"]; ok {
		m, ok := plainObject(v)
		if !ok {
			return invalid("theme is not an object")
		}
		cfg.Theme = m
	}
	if v, ok := root["fidgetTrayContents"]; ok {
		arr, ok := v.([]any)
		if !ok {
			return invalid("fidgetTrayContents is not an array")
		}
		cfg.FidgetTrayContents = arr
	}
	cfg.IsPrivate = pol.DefaultIsPrivate
	if v, ok := root["isPrivate"]; ok {
		if b, ok := v.(bool); ok {
			cfg.IsPrivate = b
		} else if pol.RequireIsPrivate {
			return invalid("isPrivate is not a boolean")
		}
	}
	if v, ok := root["timestamp"]; ok {
		s, ok := v.(string)
		if !ok {
			return invalid("timestamp is not a string")
		}
		cfg.Timestamp = s
	}

	return Result{Valid: true, Config: cfg}
}

// stillValid re-checks a cached config. Cached maps are shared with callers,
// so a tab can be corrupted after the initial gate; such tabs are filtered
// from reads instead of crashing them.
func stillValid(cfg model.TabConfig) bool {
	if cfg.FidgetInstanceDatums == nil {
		return false
	}
	for _, d := range cfg.FidgetInstanceDatums {
		dm, ok := plainObject(d)
		if !ok {
			return false
		}
		if _, ok := plainObject(dm["config"]); !ok {
			return false
		}
	}
	return true
}
