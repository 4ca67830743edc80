// Command lumen evaluates AI-assisted decisions against jurisdiction
// policy packs and maintains the tamper-evident audit chain.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/forge-health-ai/lumen-sdk/pkg/chain"
	"github.com/forge-health-ai/lumen-sdk/pkg/config"
	"github.com/forge-health-ai/lumen-sdk/pkg/engine"
	"github.com/forge-health-ai/lumen-sdk/pkg/policy"
	"github.com/forge-health-ai/lumen-sdk/pkg/record"
	"github.com/forge-health-ai/lumen-sdk/pkg/scoring"
	"github.com/forge-health-ai/lumen-sdk/pkg/versioning"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "evaluate":
		return runEvaluateCmd(args[2:], stdout, stderr)
	case "packs":
		return runPacksCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "lumen engine %s\n", versioning.EngineVersion)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lumen <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  evaluate   Evaluate a decision request file against policy packs")
	fmt.Fprintln(w, "  packs      List registered policy packs")
	fmt.Fprintln(w, "  verify     Verify the integrity of a persisted audit session")
	fmt.Fprintln(w, "  export     Export an audit session as a verification bundle")
	fmt.Fprintln(w, "  version    Print the engine version")
}

func loadConfig(path string, stderr io.Writer) (*config.Config, int) {
	if path == "" {
		return config.Default(), 0
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, 1
	}
	return cfg, 0
}

func buildRegistry(cfg *config.Config, stderr io.Writer) (*policy.Registry, int) {
	reg, err := policy.NewRegistry(versioning.EngineVersion)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, 1
	}
	if cfg.PackDir != "" {
		if err := reg.LoadDir(cfg.PackDir); err != nil {
			fmt.Fprintln(stderr, err)
			return nil, 1
		}
	}
	return reg, 0
}

// evaluateRequest is the JSON shape of an evaluation request file.
type evaluateRequest struct {
	Actor              string                   `json:"actor"`
	TenantID           string                   `json:"tenant_id"`
	SubjectRef         string                   `json:"subject_ref"`
	WorkflowID         string                   `json:"workflow_id"`
	RequestContext     map[string]string        `json:"request_context,omitempty"`
	Inputs             map[string]any           `json:"inputs"`
	Output             record.AIOutput          `json:"output"`
	Action             string                   `json:"action"`
	PolicyContext      policy.Context           `json:"policy_context,omitempty"`
	Packs              []string                 `json:"packs,omitempty"`
	Factors            []scoring.EvidenceFactor `json:"factors,omitempty"`
	Radar              scoring.RiskRadar        `json:"radar,omitempty"`
	Signal             scoring.MonteCarloSignal `json:"signal,omitempty"`
	Citations          scoring.CitationSet      `json:"citations,omitempty"`
	FatalFlaw          bool                     `json:"fatal_flaw,omitempty"`
	PHIPresent         bool                     `json:"phi_present,omitempty"`
	OversightConfirmed bool                     `json:"oversight_confirmed,omitempty"`
}

func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a lumen config file")
	requestPath := fs.String("request", "", "path to the evaluation request JSON")
	mode := fs.String("mode", "", "enforcement mode override (ADVISORY|GUARDED|STRICT)")
	session := fs.String("session", "", "audit session id override")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *requestPath == "" {
		fmt.Fprintln(stderr, "evaluate: -request is required")
		return 2
	}

	cfg, code := loadConfig(*configPath, stderr)
	if code != 0 {
		return code
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *session != "" {
		cfg.SessionID = *session
	}

	data, err := os.ReadFile(*requestPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	var req evaluateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		fmt.Fprintf(stderr, "evaluate: parse request: %v\n", err)
		return 1
	}
	if req.TenantID == "" {
		req.TenantID = cfg.TenantID
	}
	if len(req.Packs) == 0 {
		req.Packs = cfg.Packs
	}

	reg, code := buildRegistry(cfg, stderr)
	if code != 0 {
		return code
	}

	enfMode, err := engine.ParseMode(cfg.Mode)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	auditChain := chain.New(req.TenantID, cfg.SessionID)
	opts := engine.Options{
		Registry: reg,
		Chain:    auditChain,
		Mode:     enfMode,
		Logger:   newLogger(cfg.LogLevel, stderr),
	}
	if cfg.DatabasePath != "" {
		store, err := chain.Open(cfg.DatabasePath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer func() { _ = store.Close() }()
		opts.Store = store
	}

	eng, err := engine.New(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	eval, evalErr := eng.Evaluate(context.Background(), &engine.Request{
		Actor: req.Actor,
		Record: &record.Params{
			TenantID:       req.TenantID,
			SubjectRef:     req.SubjectRef,
			WorkflowID:     req.WorkflowID,
			RequestContext: req.RequestContext,
			Inputs:         req.Inputs,
			Output:         req.Output,
			Action:         record.HumanAction(req.Action),
			PolicyContext:  req.PolicyContext,
		},
		PackIDs:            req.Packs,
		Factors:            req.Factors,
		Radar:              req.Radar,
		Signal:             req.Signal,
		Citations:          req.Citations,
		FatalFlaw:          req.FatalFlaw,
		PHIPresent:         req.PHIPresent,
		OversightConfirmed: req.OversightConfirmed,
	})
	if evalErr != nil && eval == nil {
		fmt.Fprintln(stderr, evalErr)
		return 1
	}

	out, err := json.MarshalIndent(eval, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))

	if evalErr != nil {
		// Enforcement refusal: the evaluation above explains why.
		fmt.Fprintln(stderr, evalErr)
		return 3
	}
	return 0
}

func runPacksCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("packs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a lumen config file")
	asJSON := fs.Bool("json", false, "print the catalog as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, code := loadConfig(*configPath, stderr)
	if code != 0 {
		return code
	}
	reg, code := buildRegistry(cfg, stderr)
	if code != 0 {
		return code
	}

	sums := reg.Summaries()
	if *asJSON {
		out, err := json.MarshalIndent(sums, "", "  ")
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, string(out))
		return 0
	}

	for _, s := range sums {
		fmt.Fprintf(stdout, "%-16s %-10s %-8s %3d checks  %s (%s)\n",
			s.PackID, s.Release, s.Tier, s.ChecksCount, s.Name, s.Jurisdiction)
	}
	return 0
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "path to the audit database")
	tenant := fs.String("tenant", "default", "tenant id")
	session := fs.String("session", "default", "session id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dbPath == "" {
		fmt.Fprintln(stderr, "verify: -db is required")
		return 2
	}

	store, err := chain.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = store.Close() }()

	res, err := store.VerifySession(context.Background(), *tenant, *session)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Fprintln(stdout, string(out))
	if !res.Valid {
		return 3
	}
	return 0
}

func runExportCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "path to the audit database")
	tenant := fs.String("tenant", "default", "tenant id")
	session := fs.String("session", "default", "session id")
	outPath := fs.String("out", "", "write the bundle to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dbPath == "" {
		fmt.Fprintln(stderr, "export: -db is required")
		return 2
	}

	store, err := chain.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = store.Close() }()

	events, err := store.LoadSession(context.Background(), *tenant, *session)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ex := &chain.Export{
		TenantID:   *tenant,
		SessionID:  *session,
		ExportedAt: time.Now().UTC(),
		EventCount: len(events),
		Events:     events,
	}

	out, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, out, 0o600); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "exported %d events to %s\n", len(events), *outPath)
		return 0
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
