package executor

import (
	"context"
	"errors"
	"testing"

	"agentd/internal/profile"
	"agentd/internal/queue"
	"agentd/pkg/types"
)

type fakeLoader struct {
	loads   []string
	touches []string
	loadErr error
}

func (l *fakeLoader) RequestLoad(ctx context.Context, id string) error {
	l.loads = append(l.loads, id)
	return l.loadErr
}

func (l *fakeLoader) Touch(id string) bool {
	l.touches = append(l.touches, id)
	return true
}

type fakeGenerator struct {
	out    string
	err    error
	models []string
}

func (g *fakeGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	g.models = append(g.models, model)
	return g.out, g.err
}

type staticProfiles struct{ p profile.Profile }

func (s staticProfiles) CurrentProfile() profile.Profile { return s.p }

func testProvider() staticProfiles {
	return staticProfiles{p: profile.Profile{
		Name: "standard",
		Resources: []types.ResourceSpec{
			{ID: "big", SizeMB: 9600},
			{ID: "small", SizeMB: 4700},
		},
		Roles: map[string]string{"general": "big", "router": "small"},
	}}
}

func TestExecuteResolvesExplicitResource(t *testing.T) {
	l := &fakeLoader{}
	g := &fakeGenerator{out: "done"}
	e := New(l, g, testProvider())
	res, err := e.Execute(context.Background(), &queue.Request{
		ID:      "r1",
		Routing: types.RoutingDecision{ResourceID: "small"},
		Input:   "hi",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ResourceID != "small" || res.Output != "done" {
		t.Fatalf("result = %+v", res)
	}
	if len(l.loads) != 1 || l.loads[0] != "small" {
		t.Fatalf("loads = %v", l.loads)
	}
	if len(l.touches) != 1 || l.touches[0] != "small" {
		t.Fatalf("touches = %v", l.touches)
	}
}

func TestExecuteResolvesByRole(t *testing.T) {
	l := &fakeLoader{}
	g := &fakeGenerator{out: "done"}
	e := New(l, g, testProvider())
	res, err := e.Execute(context.Background(), &queue.Request{
		ID:      "r1",
		Routing: types.RoutingDecision{Role: "router"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ResourceID != "small" {
		t.Fatalf("ResourceID = %s, want small", res.ResourceID)
	}
}

func TestExecuteDefaultRoles(t *testing.T) {
	l := &fakeLoader{}
	g := &fakeGenerator{out: "done"}
	e := New(l, g, testProvider())

	// Skill tasks route through the lightweight router model.
	res, err := e.Execute(context.Background(), &queue.Request{ID: "r1", TaskType: types.TaskSkill})
	if err != nil || res.ResourceID != "small" {
		t.Fatalf("skill route = %v/%v, want small", res, err)
	}
	// Agent tasks use the general model.
	res, err = e.Execute(context.Background(), &queue.Request{ID: "r2", TaskType: types.TaskAgent})
	if err != nil || res.ResourceID != "big" {
		t.Fatalf("agent route = %v/%v, want big", res, err)
	}
}

func TestExecuteUnknownRole(t *testing.T) {
	e := New(&fakeLoader{}, &fakeGenerator{}, testProvider())
	_, err := e.Execute(context.Background(), &queue.Request{
		ID:      "r1",
		Routing: types.RoutingDecision{Role: "vision"},
	})
	if err == nil {
		t.Fatalf("Execute succeeded for an unassigned role")
	}
}

func TestExecuteLoadFailure(t *testing.T) {
	l := &fakeLoader{loadErr: errors.New("no capacity")}
	g := &fakeGenerator{}
	e := New(l, g, testProvider())
	_, err := e.Execute(context.Background(), &queue.Request{ID: "r1"})
	if err == nil {
		t.Fatalf("Execute succeeded despite load failure")
	}
	if len(g.models) != 0 {
		t.Fatalf("generator ran despite load failure")
	}
}

func TestExecuteGenerateFailure(t *testing.T) {
	l := &fakeLoader{}
	g := &fakeGenerator{err: errors.New("model crashed")}
	e := New(l, g, testProvider())
	_, err := e.Execute(context.Background(), &queue.Request{ID: "r1"})
	if err == nil {
		t.Fatalf("Execute succeeded despite generate failure")
	}
	if len(l.touches) != 0 {
		t.Fatalf("failed generation refreshed keep-alive: %v", l.touches)
	}
}
