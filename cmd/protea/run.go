package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/protea-dev/protea/internal/chatops"
	"github.com/protea-dev/protea/internal/config"
	"github.com/protea-dev/protea/internal/events"
	"github.com/protea-dev/protea/internal/fitness"
	"github.com/protea-dev/protea/internal/heartbeat"
	"github.com/protea-dev/protea/internal/kernel"
	"github.com/protea-dev/protea/internal/llm"
	"github.com/protea-dev/protea/internal/orchestrator"
	"github.com/protea-dev/protea/internal/portal"
	"github.com/protea-dev/protea/internal/resources"
	"github.com/protea-dev/protea/internal/revision"
	"github.com/protea-dev/protea/internal/skills"
	"github.com/protea-dev/protea/internal/state"
	"github.com/protea-dev/protea/internal/tasklog"
	"github.com/protea-dev/protea/internal/tasks"
	"github.com/protea-dev/protea/internal/worker"
)

// workerEntrypoint is the worker's fixed module entry file, matching
// the original's ring2/main.py convention.
const workerEntrypoint = "main.py"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the supervisor and its generation loop",
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		if err := runSupervisor(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().String("config", "config/config.toml", "path to config.toml")
	rootCmd.AddCommand(runCmd)
}

func runSupervisor(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := events.NewLogger("supervisor")
	workerDir := cfg.Worker.SourcePath
	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		return fmt.Errorf("create worker dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Fitness.DBPath), 0o755); err != nil {
		return fmt.Errorf("create fitness dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	heartbeatPath := filepath.Join(workerDir, ".heartbeat")
	hbMonitor := heartbeat.NewMonitor(heartbeatPath, cfg.Heartbeat.TimeoutSec)

	revStore, err := revision.Open(ctx, workerDir)
	if err != nil {
		return fmt.Errorf("open revision store: %w", err)
	}
	if err := revStore.Init(ctx); err != nil {
		return fmt.Errorf("init revision store: %w", err)
	}

	fitnessLog, err := fitness.Open(cfg.Fitness.DBPath)
	if err != nil {
		return fmt.Errorf("open fitness log: %w", err)
	}
	defer fitnessLog.Close()

	var llmClient llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient = llm.NewAnthropicClient(cfg.LLM.APIKey, cfg.LLM.Model, int64(cfg.LLM.MaxTokens))
	} else {
		log.Warn("ANTHROPIC_API_KEY not set — evolution will skip on every generation")
		llmClient = &llm.FakeClient{Err: fmt.Errorf("no LLM configured")}
	}

	orch := orchestrator.New(llmClient, fitnessLog, orchestrator.Config{
		Entrypoint:       workerEntrypoint,
		MaxPromptHistory: cfg.LLM.MaxPromptHistory,
	})

	st := state.New()
	workers := worker.NewManager()

	kernelCfg := kernel.Config{
		WorkerDir:         workerDir,
		Entrypoint:        workerEntrypoint,
		HeartbeatPath:     heartbeatPath,
		HeartbeatInterval: time.Duration(cfg.Heartbeat.IntervalSec * float64(time.Second)),
		HeartbeatTimeout:  time.Duration(cfg.Heartbeat.TimeoutSec * float64(time.Second)),
		Seed:              cfg.Evolution.Seed,
		ResourceThresholds: resources.Thresholds{
			MaxCPUPercent:    cfg.Resources.MaxCPUPercent,
			MaxMemoryPercent: cfg.Resources.MaxMemoryPercent,
			MaxDiskPercent:   cfg.Resources.MaxDiskPercent,
		},
	}
	k := kernel.New(kernelCfg, st, hbMonitor, revStore, fitnessLog, workers, orch, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		k.Run(ctx)
	}()

	skillsCatalog, err := skills.Open(filepath.Join(filepath.Dir(cfg.Fitness.DBPath), "skills.db"))
	if err != nil {
		return fmt.Errorf("open skills catalog: %w", err)
	}
	defer skillsCatalog.Close()

	if descriptors, derr := skills.LoadDescriptorsDir(filepath.Join("config", "skills")); derr == nil && len(descriptors) > 0 {
		if serr := skillsCatalog.Seed(ctx, descriptors); serr != nil {
			log.Warn("skill seed failed: %v", serr)
		}
	}

	tlog, err := tasklog.Open(filepath.Join(filepath.Dir(cfg.Fitness.DBPath), "tasks.db"))
	if err != nil {
		return fmt.Errorf("open task log: %w", err)
	}
	defer tlog.Close()

	if cfg.Chat.Enabled {
		var transport chatops.Transport
		if cfg.Chat.BotToken != "" {
			transport = chatops.NewTelegramTransport(cfg.Chat.BotToken)
		} else {
			console, cerr := chatops.NewConsoleTransport(cfg.Chat.ChatID)
			if cerr != nil {
				return fmt.Errorf("start console transport: %w", cerr)
			}
			defer console.Close()
			transport = console
		}

		operator := chatops.New(transport, st, fitnessLog, revStore, workerDir, workerEntrypoint, cfg.Chat.ChatID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			operator.Run(ctx)
		}()

		reply := func(text string) error {
			return transport.SendMessage(ctx, cfg.Chat.ChatID, text)
		}
		executor := tasks.New(st, llmClient, workerDir, workerEntrypoint, reply, tlog)
		wg.Add(1)
		go func() {
			defer wg.Done()
			executor.Run(ctx)
		}()
	}

	var portalSrv *portal.Portal
	if cfg.Portal.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Portal.Host, cfg.Portal.Port)
		portalSrv = portal.New(skillsCatalog, st, filepath.Join(workerDir, "reports"), workerDir, workerEntrypoint, addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if perr := portalSrv.Run(); perr != nil {
				log.Error("portal server error: %v", perr)
			}
		}()
		log.Info("web portal listening on %s", color.New(color.FgCyan).Sprint(addr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	log.Info("Protea online — heartbeat every %.0fs, timeout %.0fs", cfg.Heartbeat.IntervalSec, cfg.Heartbeat.TimeoutSec)

	<-sigCh
	log.Info("shutting down")
	cancel()

	if portalSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = portalSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	wg.Wait()
	log.Info("Protea offline")
	return nil
}
