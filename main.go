package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/cascadeflow/cascade/actions"
	"github.com/cascadeflow/cascade/dsl"
	"github.com/cascadeflow/cascade/entrypoint"
	"github.com/cascadeflow/cascade/flow"
)

// Loads every pipeline under the pipelines directory and serves each one at
// POST /pipelines/<name>.
func main() {
	dir := "pipelines"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	cfg, err := flow.NewConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg = cfg.WithLogger(logger)

	client, err := actions.NewHTTPClient(actions.HTTPConfig{})
	if err != nil {
		log.Fatalf("Error building http client: %v", err)
	}
	registry := dsl.NewRegistry(client)

	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		log.Fatalf("Error listing pipelines: %v", err)
	}

	g := gin.Default()
	for _, path := range paths {
		p, err := dsl.LoadFile(path)
		if err != nil {
			log.Fatalf("Error loading %s: %v", path, err)
		}
		action, err := registry.Compile(p)
		if err != nil {
			log.Fatalf("Error compiling %s: %v", path, err)
		}
		entrypoint.HTTPTrigger{
			Method: http.MethodPost,
			Path:   "/pipelines/" + p.Name,
			Action: action,
			Config: cfg,
		}.Register(g)
		logger.Info("pipeline registered", "name", p.Name, "file", path)
	}

	if err := g.Run(":8080"); err != nil {
		log.Fatalf("Error running server: %v", err)
	}
}
