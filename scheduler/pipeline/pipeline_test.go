package pipeline

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/kernelsched/kernel/scheduler"
)

type stubSystem struct{ key string }

func (s *stubSystem) Awake() error                { return nil }
func (s *stubSystem) Update() error                { return nil }
func (s *stubSystem) Shutdown() error              { return nil }
func (s *stubSystem) ObjectHandle() interface{}     { return s }
func (s *stubSystem) CapabilityHandle() interface{} { return s }
func (s *stubSystem) DependencyKey() string         { return s.key }

const sampleYAML = `
pipeline: demo
nodes:
  - key: physics
    main_thread_only: false
  - key: render
    main_thread_only: true
edges:
  - from: physics
    to: render
`

func TestApplyWiresEdgesAndBuckets(t *testing.T) {
	s := scheduler.New()
	s.AddSystem(&stubSystem{key: "physics"})
	s.AddSystem(&stubSystem{key: "render"})

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "demo.yaml", []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(fs, "demo.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Apply(s); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	levels := s.Levels()
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels after wiring physics->render, got %d", len(levels))
	}
	renderID, _ := s.Lookup("render")
	if len(levels[1].MainThread) != 1 || levels[1].MainThread[0] != renderID {
		t.Errorf("expected render pinned to the main-thread bucket of level 1, got %+v", levels[1])
	}
}

func TestApplyRejectsUnknownKey(t *testing.T) {
	s := scheduler.New()
	cfg := &Config{Pipeline: "demo", Edges: []EdgeConfig{{From: "a", To: "b"}}}
	if err := cfg.Apply(s); err == nil {
		t.Errorf("expected an error for an edge referencing unregistered keys")
	}
}
