package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oakmoor/cairn/internal/printer"
	"github.com/oakmoor/cairn/pkg/blackboard"
	"github.com/oakmoor/cairn/pkg/interest"
	"github.com/oakmoor/cairn/pkg/registry"
	"github.com/oakmoor/cairn/pkg/scheduler"
	"github.com/oakmoor/cairn/pkg/wait"
)

var (
	runScenarioPath string
	runSavePath     string
	runLoadPath     string
	runGraceTime    string
	runTempDir      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario until quiescence",
	Long: `Run wires a fresh blackboard, registry, interest index, wait
registry, and scheduler together, registers gamemaster's built-in demo
workers, optionally restores a save file, feeds the scenario's seed
facts to any registered BackStory, and runs until the game reaches
quiescence or is interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runScenarioPath, "scenario", "", "path to a scenario YAML file (required)")
	runCmd.Flags().StringVar(&runSavePath, "save", "", "write a snapshot here after the run completes")
	runCmd.Flags().StringVar(&runLoadPath, "load", "", "resume from a snapshot written by --save")
	runCmd.Flags().StringVar(&runGraceTime, "grace-time", "", "override the scenario's grace_time (e.g. 2s)")
	runCmd.Flags().StringVar(&runTempDir, "temp-dir", "", "override the scenario's temporary_base")
	_ = runCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	sc, err := loadScenario(runScenarioPath)
	if err != nil {
		return err
	}
	opts, err := sc.options(runGraceTime, runTempDir)
	if err != nil {
		return err
	}
	engineVersion := orDefault(sc.EngineVersion, "1.0")

	reg := registry.New()
	if err := registerDemoTypes(reg); err != nil {
		return fmt.Errorf("gamemaster: register fact types: %w", err)
	}

	store := blackboard.NewStore()
	idx := interest.New()
	waits := wait.New()
	sched := scheduler.New(store, reg, idx, waits, opts, engineVersion)

	templates := demoTemplates()
	for _, tpl := range templates {
		if err := sched.Register(tpl); err != nil {
			return fmt.Errorf("gamemaster: register worker %q: %w", tpl.Declaration.Name, err)
		}
	}

	if runLoadPath != "" {
		f, err := os.Open(runLoadPath)
		if err != nil {
			return fmt.Errorf("gamemaster: open load file: %w", err)
		}
		loadErr := sched.Load(f, reg, templates)
		f.Close()
		if loadErr != nil {
			return fmt.Errorf("gamemaster: load snapshot: %w", loadErr)
		}
		printer.Info("loaded snapshot from %s\n", runLoadPath)
	} else {
		for _, sf := range sc.SeedFacts {
			sched.SeedFact(seedEntry(sf))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			printer.Info("received signal %v, shutting down\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	printer.Info("running scenario %s\n", runScenarioPath)
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("gamemaster: run: %w", err)
	}
	printer.Success("game reached quiescence\n")

	if runSavePath != "" {
		f, err := os.Create(runSavePath)
		if err != nil {
			return fmt.Errorf("gamemaster: create save file: %w", err)
		}
		saveErr := sched.Save(f)
		closeErr := f.Close()
		if saveErr != nil {
			return fmt.Errorf("gamemaster: save snapshot: %w", saveErr)
		}
		if closeErr != nil {
			return fmt.Errorf("gamemaster: close save file: %w", closeErr)
		}
		printer.Info("saved snapshot to %s\n", runSavePath)
	}

	return nil
}

func seedEntry(sf scenarioFact) *blackboard.Entry {
	fields := make(map[string]any, len(sf.Fields))
	for k, v := range sf.Fields {
		if k == "data" {
			if s, ok := v.(string); ok {
				fields[k] = []byte(s)
				continue
			}
		}
		fields[k] = v
	}
	return &blackboard.Entry{Type: sf.Type, Groups: sf.Groups, Fields: fields}
}
