package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/kfujino/descent/internal/events"
	"github.com/kfujino/descent/internal/graph"
	"github.com/kfujino/descent/internal/health"
	"github.com/kfujino/descent/internal/lock"
	"github.com/kfujino/descent/internal/model"
	"github.com/kfujino/descent/internal/pool"
	"github.com/kfujino/descent/internal/sched"
	"github.com/kfujino/descent/internal/session"
	"github.com/kfujino/descent/internal/watch"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runRun(os.Args[2:]))
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "version":
		fmt.Printf("descent %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: descent <command> [options]

commands:
  run       execute the task graph inside an isolated session
  validate  check the task file for malformed ids, dangling refs and cycles
  version   print the version

run options:
  -config path   config file (default descent.yaml)
  -tasks path    task file (default tasks.yaml)
  -base ref      base reference override
  -store kind    session store: git or mem (default mem)
  -repo dir      repository root for the git store (default .)

exit codes: 0 run succeeded and merged, 1 partial failure or cancellation,
2 configuration or internal error`)
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "descent.yaml", "config file")
	tasksPath := fs.String("tasks", "tasks.yaml", "task file")
	baseRef := fs.String("base", "", "base reference override")
	storeKind := fs.String("store", "mem", "session store: git or mem")
	repoDir := fs.String("repo", ".", "repository root for the git store")
	_ = fs.Parse(args)

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *baseRef != "" {
		cfg.Session.BaseRef = *baseRef
	}

	entries, err := loadTasks(*tasksPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tasks: %v\n", err)
		return 2
	}

	g, err := graph.Build(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graph: %v\n", err)
		return 2
	}

	logger := log.New(os.Stderr, "", 0)
	logLevel := sched.ParseLogLevel(cfg.Logging.Level)

	// One run per journal dir at a time.
	if err := os.MkdirAll(cfg.Session.JournalDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "journal dir: %v\n", err)
		return 2
	}
	fileLock := lock.NewFileLock(filepath.Join(cfg.Session.JournalDir, "descent.lock"))
	if err := fileLock.TryLock(); err != nil {
		fmt.Fprintf(os.Stderr, "another run holds the journal dir: %v\n", err)
		return 2
	}
	defer fileLock.Unlock()

	var store session.Store
	switch *storeKind {
	case "git":
		store = session.NewGitStore(*repoDir)
	case "mem":
		store = session.NewMemStore(cfg.Session.BaseRef)
	default:
		fmt.Fprintf(os.Stderr, "unknown store kind %q\n", *storeKind)
		return 2
	}

	bus := events.NewBus(64)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cw := watch.New(filepath.Join(cfg.Session.JournalDir, "control"), "cancel", cancel, logger)
	if err := cw.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "cancel watcher: %v\n", err)
		return 2
	}
	defer cw.Close()

	mgr := session.NewManager(store, cfg.Session.JournalDir, bus, logger)
	sess, err := mgr.Open(ctx, cfg.Session.BaseRef, session.Options{
		MergeThreshold: cfg.Session.MergeThreshold,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open session: %v\n", err)
		return 2
	}

	monitor := health.NewMonitor(cfg.Health.RetryBudget, thresholdsFrom(cfg.Health))

	s := sched.New(sched.Deps{
		Graph:   g,
		Pool:    pool.New(cfg.Workers),
		Session: sess,
		Monitor: monitor,
		Runner:  shellRunner{},
		Bus:     bus,
		Logger:  logger,
	}, cfg.Scheduler, logLevel)

	report, runErr := s.Run(ctx)

	out, err := yamlv3.Marshal(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal report: %v\n", err)
		return 2
	}
	fmt.Print(string(out))

	switch {
	case runErr == nil && report.TerminalState == model.RunSuccess:
		return 0
	case runErr == nil, errors.Is(runErr, context.Canceled):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "run: %v\n", runErr)
		return 2
	}
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	tasksPath := fs.String("tasks", "tasks.yaml", "task file")
	_ = fs.Parse(args)

	entries, err := loadTasks(*tasksPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tasks: %v\n", err)
		return 2
	}

	g, err := graph.Build(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		return 1
	}

	fmt.Printf("ok: %d tasks, critical path %d\n", g.Len(), g.CriticalPathLength())
	for _, id := range g.TaskIDs() {
		fmt.Printf("  %-10s tier=%d deps=%v\n", id, g.Tier(id), g.Dependencies(id))
	}
	return 0
}

func loadTasks(path string) ([]model.TaskEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var list model.TaskList
	if err := yamlv3.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return list.Tasks, nil
}

func secDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

func thresholdsFrom(hc model.HealthConfig) health.Thresholds {
	return health.Thresholds{
		Window:    secDuration(hc.WindowSec),
		Cooldown:  secDuration(hc.CooldownSec),
		Minimal:   hc.MinimalAfter,
		Moderate:  hc.ModerateAfter,
		Severe:    hc.SevereAfter,
		Emergency: hc.EmergencyAfter,
	}
}

// shellRunner executes a task body as a shell command. Tasks with an empty
// body are structural and complete immediately.
type shellRunner struct{}

func (shellRunner) Run(ctx context.Context, task model.Task, params health.Params) error {
	if task.Body == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", task.Body)
	cmd.Env = append(os.Environ(),
		"DESCENT_TASK_ID="+task.ID,
		fmt.Sprintf("DESCENT_ATTEMPT=%d", params.Attempt),
		fmt.Sprintf("DESCENT_EFFORT_LIMIT=%d", params.EffortLimit),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	return nil
}
