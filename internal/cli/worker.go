package cli

import (
	"context"
	"flag"

	"github.com/cybertec-postgresql/pgcov/internal/database"
	"github.com/cybertec-postgresql/pgcov/internal/logger"
	"github.com/cybertec-postgresql/pgcov/internal/runner"
	"github.com/cybertec-postgresql/pgcov/internal/sqltest"
)

// RunWorker is the re-exec worker entry point. main() calls it directly,
// before any urfave/cli parsing, whenever PGCOV_RUNNER_WORKER=1. args is
// the same argv the top-level "run" invocation received (the executor
// re-execs the binary with an unchanged argument list), so a worker
// rebuilds an identical Config and TestSuite to the parent's and then
// narrows execution down to the test ids named by PGCOV_WORKER_TESTS.
func RunWorker(ctx context.Context, args []string) int {
	if len(args) == 0 || args[0] != "run" {
		logger.Error("worker re-exec expected a 'run' invocation")
		return 1
	}

	config, searchPath, err := parseWorkerArgs(args[1:])
	if err != nil {
		logger.Errorf("worker arg parse failed: %v", err)
		return 1
	}
	logger.SetVerbose(config.Verbose)

	pool, err := database.NewPool(ctx, config)
	if err != nil {
		logger.Errorf("worker database connection failed: %v", err)
		return 1
	}
	defer pool.Close()

	_, registry, err := sqltest.BuildSuite(searchPath, pool, config.Timeout, nil)
	if err != nil {
		logger.Errorf("worker suite rebuild failed: %v", err)
		return 1
	}

	return runner.RunWorker(registry)
}

// parseWorkerArgs re-derives the Config and search path from a "run"
// subcommand's argument list, mirroring the flags runCommand exposes.
// It intentionally avoids re-entering the urfave/cli app, since a worker
// process must never risk falling back into interactive CLI behavior.
func parseWorkerArgs(args []string) (*Config, string, error) {
	fs := flag.NewFlagSet("pgcov-worker", flag.ContinueOnError)
	connection := fs.String("connection", "", "")
	fs.String("c", "", "")
	timeout := fs.Duration("timeout", 0, "")
	parallel := fs.Int("parallel", 0, "")
	coverageFile := fs.String("coverage-file", "", "")
	verbose := fs.Bool("verbose", false, "")

	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	config := LoadConfig()
	ApplyFlagsToConfig(config, *connection, *timeout, *parallel, *coverageFile, *verbose)
	if err := config.Validate(); err != nil {
		return nil, "", err
	}

	searchPath := fs.Arg(0)
	if searchPath == "" {
		searchPath = "."
	}
	return config, searchPath, nil
}
