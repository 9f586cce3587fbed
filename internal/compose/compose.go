// Package compose chains analysis tools into validated pipelines. Every
// tool declares the kind of data it consumes and produces, so a chain can
// be checked for fit before anything runs.
package compose

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "kgas/pkg/errors"
	"kgas/pkg/logger"
)

// DataKind identifies what a payload carries between tools
type DataKind string

const (
	KindPath       DataKind = "path"
	KindDocument   DataKind = "document"
	KindExtraction DataKind = "extraction"
	KindGraphOps   DataKind = "graphops"
	KindSnapshot   DataKind = "snapshot"
	KindScores     DataKind = "scores"
)

// Payload is the value threaded through a chain, tagged with its kind
type Payload struct {
	Kind  DataKind
	Value interface{}
}

// Tool is one composable processing step
type Tool interface {
	Name() string
	Input() DataKind
	Output() DataKind
	Run(ctx context.Context, payload Payload) (Payload, error)
}

// Registry holds tools by name, safe for concurrent use
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are rejected so a chain always
// resolves to one implementation.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a registered tool by name
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return tool, nil
}

// List returns registered tool names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain resolves tool names into a validated chain
func (r *Registry) Chain(names ...string) (*Chain, error) {
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	chain := NewChain(tools...)
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return chain, nil
}

// Chain is an ordered sequence of tools where each step's output kind
// feeds the next step's input kind
type Chain struct {
	tools  []Tool
	logger *zap.Logger
}

// NewChain builds a chain without validating it; call Validate or let
// Run do it
func NewChain(tools ...Tool) *Chain {
	return &Chain{tools: tools, logger: logger.Get()}
}

// Validate checks that every adjacent output/input pair lines up
func (c *Chain) Validate() error {
	if len(c.tools) == 0 {
		return fmt.Errorf("chain has no tools")
	}
	for i := 0; i < len(c.tools)-1; i++ {
		produced := c.tools[i].Output()
		consumed := c.tools[i+1].Input()
		if produced != consumed {
			return fmt.Errorf("step %d (%s) produces %s but step %d (%s) consumes %s",
				i, c.tools[i].Name(), produced, i+1, c.tools[i+1].Name(), consumed)
		}
	}
	return nil
}

// Run threads the payload through every tool in order. The first failure
// aborts the chain, attributed to the step that raised it.
func (c *Chain) Run(ctx context.Context, payload Payload) (Payload, error) {
	if err := c.Validate(); err != nil {
		return Payload{}, err
	}
	if payload.Kind != c.tools[0].Input() {
		return Payload{}, fmt.Errorf("chain consumes %s, got %s", c.tools[0].Input(), payload.Kind)
	}

	for i, tool := range c.tools {
		select {
		case <-ctx.Done():
			return Payload{}, apperrors.NewContextCancelled(fmt.Sprintf("tool chain at step %d (%s)", i, tool.Name()), ctx.Err())
		default:
		}

		started := time.Now()
		next, err := tool.Run(ctx, payload)
		if err != nil {
			return Payload{}, fmt.Errorf("step %d (%s): %w", i, tool.Name(), err)
		}
		if next.Kind != tool.Output() {
			return Payload{}, fmt.Errorf("step %d (%s) returned %s, declared %s", i, tool.Name(), next.Kind, tool.Output())
		}
		c.logger.Info("Tool step completed",
			zap.Int("step", i),
			zap.String("tool", tool.Name()),
			zap.String("output", string(next.Kind)),
			zap.Duration("elapsed", time.Since(started)),
		)
		payload = next
	}
	return payload, nil
}
