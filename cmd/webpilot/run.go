package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/webpilot-ai/webpilot/internal/security"
	"github.com/webpilot-ai/webpilot/internal/task"
	"github.com/webpilot-ai/webpilot/internal/tui"
	"github.com/webpilot-ai/webpilot/internal/ui"
)

var (
	headless bool
	forceTUI bool
)

var runCmd = &cobra.Command{
	Use:   "run \"task description\"",
	Short: "Execute a browser task",
	Long: `Run plans and executes a natural-language browser task, for example:

  webpilot run "clean up spam in my gmail inbox"
  webpilot run "order a margherita pizza from ubereats"

With interactive confirmations enabled (the default), risky actions prompt on
the console before executing. The live TUI is used when confirmations are
automatic and stdout is a terminal; --headless forces plain output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().BoolVar(&headless, "headless", false, "plain console output, no live view")
	runCmd.Flags().BoolVar(&forceTUI, "tui", false, "force the live view even when not a terminal")
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	description := strings.Join(args, " ")

	// The live view owns the terminal, so it cannot coexist with console
	// confirmation prompts. Interactive mode always gets the plain console.
	useTUI := forceTUI ||
		(!headless && cfg.Security.ConfirmationMode != security.ModeInteractive &&
			term.IsTerminal(int(os.Stdin.Fd())))

	var channel ui.Channel
	if !useTUI {
		channel = ui.NewConsole(nil, nil)
	}

	eng, err := newEngine(ctx, cfg, logger, channel)
	if err != nil {
		return err
	}
	defer eng.Close()

	t := eng.tasks.Create(description)
	logger.Info("task submitted", "task_id", t.ID, "description", description,
		"session_id", eng.sessionID)

	var result map[string]any
	if useTUI {
		done := make(chan struct{})
		var execErr error
		go func() {
			defer close(done)
			result, execErr = eng.execute(ctx, t)
		}()
		if err := tui.Run(ctx, eng.bus, t); err != nil {
			return err
		}
		<-done
		if execErr != nil {
			return execErr
		}
	} else {
		result, err = eng.execute(ctx, t)
		if err != nil {
			return err
		}
	}

	printResult(cmd, t, result)

	switch t.Status {
	case task.StatusFailed:
		return fmt.Errorf("task failed: %s", t.Error)
	case task.StatusCancelled:
		return fmt.Errorf("task cancelled")
	}
	return nil
}

func printResult(cmd *cobra.Command, t *task.Task, result map[string]any) {
	cmd.Printf("\nTask %s: %s\n", t.ID, t.Status)

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("  %-18s %v\n", k, result[k])
	}
}
