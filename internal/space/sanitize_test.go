package space

import (
	"testing"
)

func validCandidate() map[string]any {
	return map[string]any{
		"fidgetInstanceDatums": map[string]any{
			"feed:1": map[string]any{
				"config": map[string]any{"settings": map[string]any{"feedType": "following"}},
			},
		},
		"layoutDetails":      map[string]any{"layoutFidget": "grid"},
		"theme":              map[string]any{"id": "default"},
		"fidgetTrayContents": []any{},
	}
}

func TestSanitize_Valid(t *testing.T) {
	t.Parallel()
	res := Sanitize(validCandidate(), Policy{})
	if !res.Valid {
		t.Fatalf("rejected: %s", res.Reason)
	}
	if len(res.Config.FidgetInstanceDatums) != 1 {
		t.Fatalf("datums lost: %+v", res.Config)
	}
	if res.Config.IsPrivate {
		t.Fatalf("isPrivate should default to false")
	}
}

func TestSanitize_Rejections(t *testing.T) {
	t.Parallel()
	cases := map[string]any{
		"not an object":     "nope",
		"missing datums":    map[string]any{"theme": map[string]any{}},
		"datums not object": map[string]any{"fidgetInstanceDatums": []any{}},
		"datum not object": map[string]any{
			"fidgetInstanceDatums": map[string]any{"x": 42},
		},
		"datum without config": map[string]any{
			"fidgetInstanceDatums": map[string]any{"x": map[string]any{}},
		},
		"datum config not object": map[string]any{
			"fidgetInstanceDatums": map[string]any{"x": map[string]any{"config": "str"}},
		},
		"layoutDetails not object": func() map[string]any {
			c := validCandidate()
			c["layoutDetails"] = 3
			return c
		}(),
		"theme not object": func() map[string]any {
			c := validCandidate()
			c["theme"] = []any{}
			return c
		}(),
		"tray not array": func() map[string]any {
			c := validCandidate()
			c["fidgetTrayContents"] = map[string]any{}
			return c
		}(),
	}
	for name, c := range cases {
		if res := Sanitize(c, Policy{}); res.Valid {
			t.Fatalf("%s: want rejection", name)
		}
	}
}

func TestSanitize_IsPrivatePolicy(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c["isPrivate"] = true
	res := Sanitize(c, Policy{})
	if !res.Valid || !res.Config.IsPrivate {
		t.Fatalf("explicit isPrivate lost: %+v", res)
	}

	// absent: use the default
	res = Sanitize(validCandidate(), Policy{DefaultIsPrivate: true})
	if !res.Valid || !res.Config.IsPrivate {
		t.Fatalf("default not applied: %+v", res)
	}

	// non-boolean: coerced when not required, rejected when required
	c = validCandidate()
	c["isPrivate"] = "yes"
	res = Sanitize(c, Policy{DefaultIsPrivate: false})
	if !res.Valid || res.Config.IsPrivate {
		t.Fatalf("coercion failed: %+v", res)
	}
	res = Sanitize(c, Policy{RequireIsPrivate: true})
	if res.Valid {
		t.Fatalf("required policy must reject non-boolean isPrivate")
	}
}

func TestStillValid_DetectsCorruption(t *testing.T) {
	t.Parallel()
	res := Sanitize(validCandidate(), Policy{})
	if !res.Valid {
		t.Fatalf("rejected: %s", res.Reason)
	}
	cfg := res.Config
	if !stillValid(cfg) {
		t.Fatalf("fresh config must be valid")
	}
	cfg.FidgetInstanceDatums["feed:1"] = 42
	if stillValid(cfg) {
		t.Fatalf("corrupted config must be detected")
	}
}
