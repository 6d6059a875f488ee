package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/internal/observability"
	"github.com/chatdock/chatdock/internal/quickask"
	"github.com/chatdock/chatdock/internal/webview"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine and drive it interactively.",
	Long: `Boots Chromium, ensures every enabled platform's context, and reads
commands from stdin:

  ask [platform] <text>   dispatch a prompt and print the answer
  show|hide|focus <id>    change one context's visibility
  close <id>              destroy a context
  hideall                 two-phase hide of every visible context
  restore                 restore the contexts visible before hideall
  status                  list contexts and their states
  quit                    shut down`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runInteractive(parent context.Context) error {
	logger := observability.GetLogger()
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	for _, p := range cfg.EnabledPlatforms() {
		_, err := eng.manager.Ensure(ctx, p.ID, webview.EnsureOptions{
			URL:      p.URL,
			Bounds:   p.Bounds,
			ProxyURL: p.ProxyURL,
		})
		if err != nil {
			logger.Warn("Failed to prepare platform context.",
				zap.String("platform", p.ID), zap.Error(err))
			continue
		}
		if err := eng.manager.Show(ctx, p.ID); err != nil {
			logger.Warn("Failed to show platform context.",
				zap.String("platform", p.ID), zap.Error(err))
		}
	}

	fmt.Println("chatdock ready; type 'status' for an overview, 'quit' to exit.")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := eng.dispatchCommand(ctx, line)
			if err != nil {
				fmt.Println("error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// dispatchCommand executes one interactive command line. It returns true
// when the loop should exit.
func (e *engine) dispatchCommand(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	verb, rest := fields[0], fields[1:]

	switch verb {
	case "quit", "exit":
		return true, nil

	case "ask":
		return false, e.runAsk(ctx, rest)

	case "show", "hide", "focus", "close":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: %s <context-id>", verb)
		}
		id := rest[0]
		switch verb {
		case "show":
			return false, e.manager.Show(ctx, id)
		case "hide":
			return false, e.manager.Hide(ctx, id)
		case "focus":
			return false, e.manager.SetFocus(ctx, id)
		default:
			return false, e.manager.Close(ctx, id)
		}

	case "hideall":
		return false, e.coordinator.HandleHideIntent(ctx)

	case "restore":
		return false, e.coordinator.HandleRestore(ctx)

	case "status":
		e.printStatus()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q", verb)
	}
}

// runAsk parses "ask [platform] text..." where the first token is treated as
// a platform id only if it is a configured platform.
func (e *engine) runAsk(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ask [platform] <text>")
	}
	req := quickask.Request{}
	if _, ok := e.cfg.Platform(args[0]); ok && len(args) > 1 {
		req.Platform = args[0]
		args = args[1:]
	}
	req.Text = strings.Join(args, " ")

	answer, err := e.ask.Ask(ctx, req)
	if err != nil {
		return err
	}
	printAnswer(answer)
	return nil
}

func (e *engine) printStatus() {
	contexts := e.manager.List()
	if len(contexts) == 0 {
		fmt.Println("no contexts")
		return
	}
	for _, info := range contexts {
		fmt.Printf("%-10s %-9s %s\n", info.ID, info.State, info.URL)
	}
}

func printAnswer(answer *quickask.Answer) {
	if answer.Fallback {
		fmt.Printf("[%s] prompt delivered via hash fallback; no extraction available\n", answer.Platform)
		return
	}
	res := answer.Result
	if res == nil {
		return
	}
	if !res.Success {
		if res.Error != nil {
			fmt.Printf("[%s] failed: %s: %s (after %d actions)\n",
				answer.Platform, res.Error.Kind, res.Error.Message, res.ActionsExecuted)
		} else {
			fmt.Printf("[%s] failed after %d actions\n", answer.Platform, res.ActionsExecuted)
		}
		return
	}
	if answer.Output != "" {
		fmt.Printf("[%s] %s\n", answer.Platform, answer.Output)
		return
	}
	fmt.Printf("[%s] ok (%d actions, %dms)\n", answer.Platform, res.ActionsExecuted, res.DurationMs)
}
