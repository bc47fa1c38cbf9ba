package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Engine extracts the visible text of a normalized JPEG image.
type Engine interface {
	Name() string
	GetModel() string
	Extract(ctx context.Context, image []byte) (Result, error)
}

// Engines holds the configured engines by name.
type Engines struct {
	byName map[string]Engine
}

func NewEngines(engs ...Engine) *Engines {
	e := &Engines{byName: make(map[string]Engine, len(engs))}
	for _, eng := range engs {
		if eng != nil {
			e.byName[strings.ToLower(eng.Name())] = eng
		}
	}
	return e
}

func (e *Engines) GetEngine(name string) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "openai" {
		name = "gpt"
	}
	if eng, ok := e.byName[name]; ok {
		return eng, nil
	}
	return nil, fmt.Errorf("unknown engine %q; available: %s", name, strings.Join(e.Names(), ", "))
}

func (e *Engines) Names() []string {
	out := make([]string, 0, len(e.byName))
	for n := range e.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
