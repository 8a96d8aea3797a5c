package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/battlebrief/bulwark/internal/logger"
	"github.com/battlebrief/bulwark/internal/provider"
)

// UnknownProviderError is returned for a model name outside the registry.
type UnknownProviderError struct {
	Name  string
	Valid []provider.Name
}

func (e *UnknownProviderError) Error() string {
	names := make([]string, len(e.Valid))
	for i, n := range e.Valid {
		names[i] = string(n)
	}
	return fmt.Sprintf("unsupported model %q, choose one of: %s", e.Name, strings.Join(names, ", "))
}

// Dispatcher routes a text to the gateway of the requested provider. It makes
// exactly one gateway call per request; retries are up to the caller.
type Dispatcher struct {
	registry provider.Registry
	log      *logger.Logger
}

func NewDispatcher(registry provider.Registry, log *logger.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: log.With("component", "Dispatcher")}
}

// Resolve maps a case-insensitive provider name to its gateway.
func (d *Dispatcher) Resolve(name string) (provider.Name, provider.Gateway, error) {
	n, ok := provider.Parse(name)
	if ok {
		if g, found := d.registry[n]; found {
			return n, g, nil
		}
	}
	return "", nil, &UnknownProviderError{Name: name, Valid: d.names()}
}

func (d *Dispatcher) names() []provider.Name {
	out := make([]provider.Name, 0, len(d.registry))
	for _, n := range provider.Names() {
		if _, ok := d.registry[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (d *Dispatcher) SummarizeText(ctx context.Context, text, name string) (string, error) {
	n, gateway, err := d.Resolve(name)
	if err != nil {
		return "", err
	}

	d.log.Debug("Dispatching summary request", "provider", n, "chars", len(text))
	summary, err := gateway.Summarize(ctx, provider.NewRequest(text))
	if err != nil {
		d.log.Warn("Provider call failed", "provider", n, "error", err)
		return "", err
	}
	return summary, nil
}
