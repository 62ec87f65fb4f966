package main

import (
	"os"

	"github.com/crewboard/crewboard-backend/config"
	"github.com/crewboard/crewboard-backend/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		logging.L().Fatal("usage: worker <migrate|sweep|schema>")
	}

	cfg := config.Read()
	logging.Init(logging.Options{
		Service:     "crewboard-worker",
		Environment: cfg.App.Environment,
		Level:       cfg.App.LogLevel,
		File:        cfg.App.LogFile,
	})

	switch os.Args[1] {
	case "migrate":
		RunMigrate(cfg)
	case "sweep":
		RunSweep(cfg)
	case "schema":
		RunSchema(os.Stdout)
	default:
		logging.L().Fatalf("unknown command: %s", os.Args[1])
	}
}
