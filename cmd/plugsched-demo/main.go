// Command plugsched-demo runs a small fixed pipeline of example systems
// through one awake/update/shutdown cycle, to exercise the scheduler end to
// end from the command line.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/spf13/afero"

	"github.com/kernelsched/kernel/examples"
	"github.com/kernelsched/kernel/resource"
	"github.com/kernelsched/kernel/scheduler"
	"github.com/kernelsched/kernel/scheduler/metrics"
	"github.com/kernelsched/kernel/scheduler/pipeline"
)

type args struct {
	PipelineFile string `arg:"--pipeline" help:"path to a pipeline YAML file; uses the built-in demo pipeline if empty"`
	Updates      int    `arg:"--updates" default:"1" help:"number of update passes to run"`
	Metrics      bool   `arg:"--metrics" help:"serve prometheus metrics on 127.0.0.1:9233 while running"`
	GraphvizFile string `arg:"--graphviz" help:"path to write the dependency graph in DOT format; skipped if empty"`
}

func (args) Version() string {
	return "plugsched-demo 0.1.0"
}

const builtinPipeline = `
pipeline: demo
comment: physics writes the world, render and audio read it
nodes:
  - key: physics
  - key: render
    main_thread_only: true
  - key: audio
edges:
  - from: physics
    to: render
  - from: physics
    to: audio
`

func main() {
	var a args
	arg.MustParse(&a)

	if err := run(a); err != nil {
		log.Fatalf("plugsched-demo: %v", err)
	}
}

func run(a args) error {
	world := &examples.World{}
	s := scheduler.New(scheduler.WithLogf(log.Printf))

	physics := examples.NewPhysicsSystem(world)
	render := examples.NewRenderSystem()
	audio := examples.NewAudioSystem()

	s.AddSystem(physics)
	s.AddSystem(render)
	s.AddSystem(audio)

	r := s.Resources()
	worldRes := r.AddResource(world)
	physicsID, _ := s.Lookup(physics.DependencyKey())
	renderID, _ := s.Lookup(render.DependencyKey())
	audioID, _ := s.Lookup(audio.DependencyKey())
	r.AddWriteRequest(resource.SystemID(physicsID), worldRes)
	r.AddReadRequest(resource.SystemID(renderID), worldRes)
	r.AddReadRequest(resource.SystemID(audioID), worldRes)

	var m *metrics.Metrics
	if a.Metrics {
		m = metrics.New()
		s.Metrics = m
		go func() {
			if err := m.Serve(); err != nil {
				log.Printf("plugsched-demo: metrics server stopped: %v", err)
			}
		}()
	}

	// The pipeline config supplies the physics->render and physics->audio
	// edges render and audio need before ResolveDependencies can hand them
	// *examples.World; fall back to the built-in pipeline when the caller
	// didn't point at a file of their own.
	var cfg *pipeline.Config
	if a.PipelineFile != "" {
		loaded, err := pipeline.LoadFile(afero.NewOsFs(), a.PipelineFile)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		var c pipeline.Config
		if err := c.Parse([]byte(builtinPipeline)); err != nil {
			return err
		}
		cfg = &c
	}
	if err := cfg.Apply(s); err != nil {
		return err
	}

	if a.GraphvizFile != "" {
		if err := s.DependencyGraph().WriteGraphviz(afero.NewOsFs(), a.GraphvizFile, "demo"); err != nil {
			return fmt.Errorf("plugsched-demo: writing graphviz output: %w", err)
		}
	}

	ctx := context.Background()
	awake := s.RunAwakePass(ctx)
	if failed := awake.Failed(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "plugsched-demo: %d systems failed to awake\n", len(failed))
	}

	for i := 0; i < a.Updates; i++ {
		report := s.RunUpdatePass(ctx)
		for _, res := range report.Failed() {
			fmt.Fprintf(os.Stderr, "plugsched-demo: system %d failed update: %v\n", res.System, res.Err)
		}
	}

	s.RunShutdownPass(ctx)
	fmt.Printf("world.frame = %d\n", world.Frame)
	return nil
}
