package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/CfKu/Hotify/internal/config"
	"github.com/CfKu/Hotify/internal/engine"
	"github.com/CfKu/Hotify/internal/events"
	"github.com/CfKu/Hotify/internal/scaffold"
	"github.com/CfKu/Hotify/internal/watcher"
)

// styles holds the lipgloss styles for activity output. All styles render
// as plain text when color is off.
type styles struct {
	env     lipgloss.Style
	path    lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	dim     lipgloss.Style
	enabled bool
}

func newStyles() styles {
	enabled := !noColor && isatty.IsTerminal(os.Stdout.Fd())
	s := styles{enabled: enabled}
	if !enabled {
		return s
	}
	s.env = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	s.path = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	s.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	s.fail = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	s.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	return s
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

func runWatch(cmd *cobra.Command, base string) error {
	if err := setupLogging(logLevel); err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("settle-delay") {
		if settleDelay < 1 {
			return fmt.Errorf("--settle-delay must be at least 1 second")
		}
		cfg.SettleDelay = settleDelay
	}
	if cmd.Flags().Changed("cleanup-inputs") {
		cfg.CleanupInputs = cleanupFlag
	}
	for _, warning := range cfg.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	base, err = filepath.Abs(base)
	if err != nil {
		return err
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	layout := scaffold.Plan(base, cfg.HotFolderName, cfg.OutputFolderName, envNames(cfg))
	if err := layout.Setup(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	bus := events.NewEventBus()
	eng := engine.New(reg,
		engine.WithSettleDelay(time.Duration(cfg.SettleDelay)*time.Second),
		engine.WithOutputDir(layout.OutputDir),
		engine.WithCleanupInputs(cfg.CleanupInputs),
		engine.WithDryRun(dryRun),
		engine.WithBus(bus),
	)
	eng.Start(ctx)

	sub, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	go printActivity(sub, newStyles())

	w, err := watcher.New(eng.HandleEvents,
		watcher.WithRecursive(true),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(layout.HotDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", layout.HotDir, err)
	}

	printStartup(cfg, layout, newStyles())

	// Pick up files dropped while hotify was not running.
	if err := w.Sweep(); err != nil {
		return fmt.Errorf("initial sweep: %w", err)
	}

	<-ctx.Done()

	if flushOnExit {
		eng.Flush()
	}
	eng.Stop()

	if cleanOnExit {
		fmt.Printf("Cleaning hot folder %s\n", layout.HotDir)
		if err := layout.Teardown(); err != nil {
			return err
		}
	}
	return nil
}

// buildRegistry turns the declarative environment list into the engine's
// immutable registry, preserving declaration order for routing tie-breaks.
func buildRegistry(cfg *config.Config) (*engine.Registry, error) {
	envs := make([]*engine.Environment, 0, len(cfg.Environments))
	for _, ec := range cfg.Environments {
		env, err := engine.NewEnvironment(ec.Name, ec.Patterns, ec.Trigger)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return engine.NewRegistry(envs...)
}

func envNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Environments))
	for _, ec := range cfg.Environments {
		names = append(names, ec.Name)
	}
	return names
}

func printStartup(cfg *config.Config, layout scaffold.Layout, s styles) {
	fmt.Printf("Watching %s (%d environments, settle delay %ds)\n",
		s.render(s.path, layout.HotDir), len(cfg.Environments), cfg.SettleDelay)
	for _, ec := range cfg.Environments {
		mode := "single"
		for _, t := range ec.Trigger {
			if referencesInFiles(t) {
				mode = "batch"
				break
			}
		}
		fmt.Printf("  %s  %v  (%s, %d step chain)\n",
			s.render(s.env, ec.Name), []string(ec.Patterns), mode, len(ec.Trigger))
	}
	fmt.Println("Press Ctrl+C to stop")
}

// printActivity renders bus events as human-readable activity lines.
func printActivity(sub <-chan events.BusEvent, s styles) {
	for ev := range sub {
		he, ok := ev.(events.HotFolderEvent)
		if !ok {
			continue
		}
		ts := he.Timestamp.Local().Format("15:04:05")
		switch he.Type {
		case events.FileUnmatched:
			fmt.Printf("%s %s %s\n", s.render(s.dim, ts),
				s.render(s.dim, "unmatched"), he.Path)
		case events.BatchFlushed:
			fmt.Printf("%s %s batch of %d file(s)\n", s.render(s.dim, ts),
				s.render(s.env, he.Environment), len(he.Files))
		case events.InvocationCompleted:
			out := ""
			if he.OutFile != "" {
				out = " -> " + s.render(s.path, he.OutFile)
			}
			fmt.Printf("%s %s %s%s\n", s.render(s.dim, ts),
				s.render(s.env, he.Environment), s.render(s.ok, "done"), out)
		case events.InvocationFailed:
			fmt.Printf("%s %s %s %s\n", s.render(s.dim, ts),
				s.render(s.env, he.Environment), s.render(s.fail, "failed"), he.Message)
		case events.CleanupFailed:
			fmt.Printf("%s %s %s %s\n", s.render(s.dim, ts),
				s.render(s.env, he.Environment), s.render(s.fail, "cleanup failed"), he.Message)
		}
	}
}

func referencesInFiles(tmpl string) bool {
	return strings.Contains(tmpl, "{in_files}")
}
