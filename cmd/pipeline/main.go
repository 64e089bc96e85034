// Package main provides the command-line entry point for the test
// generation pipeline: identify scenarios, implement PyTest code, run and
// evaluate it, and iterate until coverage and security targets are met.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/loopstack/pipeline/internal/apikey"
	"github.com/loopstack/pipeline/internal/config"
	"github.com/loopstack/pipeline/internal/dependency"
	"github.com/loopstack/pipeline/internal/governance"
	"github.com/loopstack/pipeline/internal/logutil"
	"github.com/loopstack/pipeline/internal/pipeline"
	"github.com/loopstack/pipeline/internal/registry"
	"github.com/loopstack/pipeline/internal/safety"
	"github.com/loopstack/pipeline/internal/testrunner"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	autoApprove := fs.Bool("auto-approve", false, "skip interactive scenario approval")
	noRunTests := fs.Bool("no-run-tests", false, "skip executing generated tests")
	outputDir := fs.String("output-dir", "", "directory for generated tests and artifacts (default: <codebase>/tests)")
	model := fs.String("model", "", "preferred model name; falls back to the full registry candidate list")
	ext := fs.String("ext", "", "source file extension to scan (default: from config, or .py)")
	targetCoverage := fs.Float64("target-coverage", 0, "coverage percentage to stop at (default: from config, or 90)")
	targetMutation := fs.Float64("target-mutation", 0, "mutation-kill percentage to stop at (default: from config, or 80)")
	maxIterations := fs.Int("max-iterations", 0, "hard cap on improve-loop iterations (default: from config, or 15)")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: pipeline <codebase_path> [--auto-approve] [--no-run-tests] [--output-dir <path>] [--model <name>] [--ext <suffix>] [--target-coverage <pct>] [--target-mutation <pct>] [--max-iterations <n>]")
		return 1
	}
	codebasePath := fs.Arg(0)

	if exe, err := os.Executable(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exe), ".env"))
	}
	_ = godotenv.Load()

	cfg, err := config.NewLoader().Load(codebasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *outputDir == "" {
		*outputDir = cfg.OutputDir
	}
	if *outputDir == "" {
		*outputDir = filepath.Join(codebasePath, "tests")
	}
	if *ext == "" {
		*ext = cfg.Ext
	}
	if *targetCoverage == 0 {
		*targetCoverage = cfg.TargetCoverage
	}
	if *targetMutation == 0 {
		*targetMutation = cfg.TargetMutation
	}
	if *maxIterations == 0 {
		*maxIterations = cfg.MaxIterations
	}

	logger := logutil.NewLogger(logutil.InfoLevel, os.Stderr, "[pipeline] ")
	ctx := context.Background()

	mgr := registry.NewManager(logger)
	if err := mgr.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	gateway, err := buildGateway(ctx, mgr, logger, *model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	gov := governance.New()
	safetyChecker := safety.NewPromptSafetyChecker("", logger)

	var runner *testrunner.Runner
	if !*noRunTests {
		runner = testrunner.NewRunner("pytest")
	}

	controller := &pipeline.Controller{
		CodebasePath:          codebasePath,
		OutputDir:             *outputDir,
		Ext:                   *ext,
		AutoApprove:           *autoApprove,
		SkipRunTests:          *noRunTests,
		Gateway:               gateway,
		Safety:                safetyChecker,
		Gov:                   gov,
		Logger:                logger,
		TestRunner:            runner,
		Installer:             dependency.NewInstaller("pip install", codebasePath),
		TargetCoverage:        *targetCoverage,
		TargetMutation:        *targetMutation,
		MaxIterations:         *maxIterations,
		MaxStagnantIterations: cfg.MaxStagnantIterations,
	}

	result := controller.Run(ctx)
	if result.Status != pipeline.StatusDone {
		return 1
	}
	return 0
}

// buildGateway resolves API keys for every model the registry knows about
// (or just preferredModel, if given) and wires each into a pipeline.Gateway
// candidate, so generation calls can fail over across providers instead of
// depending on exactly one.
func buildGateway(ctx context.Context, mgr *registry.Manager, logger logutil.LoggerInterface, preferredModel string) (*pipeline.Gateway, error) {
	resolver := apikey.NewAPIKeyResolver(logger)

	modelNames := mgr.GetAllModels()
	if preferredModel != "" {
		modelNames = []string{preferredModel}
	}

	var candidates []pipeline.GatewayCandidate
	for _, name := range modelNames {
		providerName, err := mgr.GetProviderForModel(name)
		if err != nil {
			continue
		}
		keyResult, err := resolver.ResolveAPIKey(ctx, providerName, "")
		if err != nil || keyResult.Key == "" {
			continue
		}

		client, err := mgr.GetRegistry().CreateLLMClient(ctx, keyResult.Key, name)
		if err != nil {
			logger.Warn("skipping model %s: %v", name, err)
			continue
		}

		var rpm, tpm, contextWindow int32
		if info, err := mgr.GetModelInfo(name); err == nil {
			rpm = info.RequestsPerMinute
			tpm = info.TokensPerMinute
			contextWindow = info.ContextWindow
		}

		candidates = append(candidates, pipeline.GatewayCandidate{
			Model:         name,
			Client:        client,
			RPM:           rpm,
			TPM:           tpm,
			ContextWindow: contextWindow,
		})
	}

	if len(candidates) == 0 {
		return nil, pipeline.ErrNoCredentials
	}
	return pipeline.NewGateway(candidates), nil
}
