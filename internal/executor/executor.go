// Package executor bridges the worker pool to the resource orchestrator
// and the model backend: resolve the routing decision against the active
// profile, make sure the resource is loaded, then run the completion.
package executor

import (
	"context"
	"fmt"
	"time"

	"agentd/internal/profile"
	"agentd/internal/queue"
	"agentd/pkg/types"
)

// Loader is the slice of the orchestrator the executor needs.
type Loader interface {
	RequestLoad(ctx context.Context, id string) error
	Touch(id string) bool
}

// Generator runs a completion against a loaded resource.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ProfileProvider exposes the active profile for role resolution.
type ProfileProvider interface {
	CurrentProfile() profile.Profile
}

// Executor is the default queue.Executor wiring.
type Executor struct {
	loader   Loader
	gen      Generator
	profiles ProfileProvider
}

// New constructs an Executor.
func New(loader Loader, gen Generator, profiles ProfileProvider) *Executor {
	return &Executor{loader: loader, gen: gen, profiles: profiles}
}

// Execute resolves the target resource, loads it and runs the request.
func (e *Executor) Execute(ctx context.Context, req *queue.Request) (*types.ExecutionResult, error) {
	start := time.Now()
	id, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	if err := e.loader.RequestLoad(ctx, id); err != nil {
		return nil, err
	}
	out, err := e.gen.Generate(ctx, id, req.Input)
	if err != nil {
		return nil, err
	}
	e.loader.Touch(id)
	return &types.ExecutionResult{
		RequestID:  req.ID,
		ResourceID: id,
		Output:     out,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// resolve picks the resource id: an explicit id wins, then the routed
// role, then the task type's default role.
func (e *Executor) resolve(req *queue.Request) (string, error) {
	if req.Routing.ResourceID != "" {
		return req.Routing.ResourceID, nil
	}
	role := req.Routing.Role
	if role == "" {
		if req.TaskType == types.TaskSkill {
			role = "router"
		} else {
			role = "general"
		}
	}
	prof := e.profiles.CurrentProfile()
	spec, ok := prof.RoleResource(role)
	if !ok {
		return "", fmt.Errorf("profile %s has no resource for role %q", prof.Name, role)
	}
	return spec.ID, nil
}
