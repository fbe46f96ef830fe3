package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas"
	"github.com/warriorguo/flowcanvas/runtime"
	"github.com/warriorguo/flowcanvas/store/mem"
	"github.com/warriorguo/flowcanvas/types"
	"github.com/warriorguo/flowcanvas/utils"
)

var (
	canvasPath = flag.String("canvas", "canvas.json", "canvas file with nodes and edges")
	relayURL   = flag.String("relay", "http://localhost:4000", "relay base url")
	renderDOT  = flag.Bool("dot", false, "print the canvas as DOT after the run")
	asJSON     = flag.Bool("json", false, "print the nodes as JSON instead of a table")
	timeout    = flag.Duration("timeout", 5*time.Minute, "give up on the flow after this long")
	stagger    = flag.Duration("stagger", 0, "pause before each downstream node")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("load .env failed: %v", err)
	}
	if level, err := log.ParseLevel(os.Getenv("FLOWCANVAS_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	if err := run(); err != nil {
		log.Fatalf("%s", errors.ErrorStack(err))
	}
}

func run() error {
	b, err := os.ReadFile(*canvasPath)
	if err != nil {
		return errors.Annotatef(err, "read canvas %s", *canvasPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s := mem.NewMemStore()
	if err := s.Set(ctx, runtime.CanvasPath, runtime.CanvasKey, b); err != nil {
		return errors.Trace(err)
	}

	engine, err := flowcanvas.NewEngine(
		types.WithStore(s),
		types.WithRelayBaseURL(*relayURL),
		types.SetStaggerDelay(*stagger),
		types.DisableRunAsync(),
	)
	if err != nil {
		return errors.Trace(err)
	}
	defer engine.Close(context.Background())

	if err := engine.Load(ctx); err != nil {
		return errors.Trace(err)
	}
	if key := os.Getenv("FLOWCANVAS_API_KEY"); key != "" {
		for _, n := range engine.Nodes() {
			if n.Kind == types.KindLLM {
				engine.SetCredential(types.ProviderForModel(n.Data.Model()), key)
			}
		}
	}

	engine.AddListener(func(change types.NodeChange) {
		if status, exists := change.Patch.GetString(types.KeyStatus); exists {
			log.Infof("%s -> %s", change.NodeID, status)
		}
	})

	if err := engine.RunFlow(ctx); err != nil {
		return errors.Trace(err)
	}

	if err := printNodes(engine.Nodes()); err != nil {
		return errors.Trace(err)
	}

	if *renderDOT {
		dot, err := engine.RenderDOT()
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Println(dot)
	}
	return nil
}

func printNodes(nodes []*types.Node) error {
	if *asJSON {
		b, err := utils.SerializeIndent(nodes)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Println(string(b))
		return nil
	}

	for _, n := range nodes {
		fmt.Printf("%-12s %-10s %-8s %s\n", n.ID, n.Kind, n.Data.Status(), n.Data.Output())
		if msg := n.Data.Message(); msg != "" {
			fmt.Printf("%-12s %s\n", "", msg)
		}
	}
	return nil
}
