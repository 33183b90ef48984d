// Command fnagent chats with a function-calling model that can use a small set
// of demo functions.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skosovsky/fnagent"
	"github.com/skosovsky/fnagent/agent"
	"github.com/skosovsky/fnagent/config"
	"github.com/skosovsky/fnagent/openaichat"
	"github.com/skosovsky/fnagent/transcript"
)

// CompleterFactory creates the completion service (replaced in tests).
type CompleterFactory func(cfg config.Config) (agent.Completer, error)

func defaultCompleter(cfg config.Config) (agent.Completer, error) {
	return openaichat.New(cfg.OpenAIConfig())
}

type app struct {
	newCompleter CompleterFactory
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
}

type runFlags struct {
	config     string
	transcript string
	noSave     bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "fnagent",
		Short:         "fnagent - chat with a model that can call Go functions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.AddCommand(newRunCmd(a), newSchemaCmd(a))
	return root
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Send a prompt, or one prompt per stdin line when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), f, args)
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "Path to the YAML configuration file")
	cmd.Flags().StringVarP(&f.transcript, "transcript", "t", "", "Write the conversation to this file (.txt, .yaml or .json)")
	cmd.Flags().BoolVar(&f.noSave, "no-save", false, "Keep each exchange out of the conversation history")
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the call schemas of the demo functions",
		RunE: func(*cobra.Command, []string) error {
			reg := fnagent.NewRegistry()
			if err := registerDemo(reg); err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reg.Schemas())
		},
	}
}

func (a *app) run(ctx context.Context, f runFlags, args []string) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	logger := cfg.Logger(a.stderr)

	reg := fnagent.NewRegistry(cfg.RegistryOptions(logger)...)
	if err := registerDemo(reg); err != nil {
		return err
	}
	completer, err := a.newCompleter(cfg)
	if err != nil {
		return err
	}
	ag, err := agent.New(cfg.AgentConfig(), completer, agent.WithRegistry(reg), agent.WithLogger(logger))
	if err != nil {
		return err
	}
	logger.Debug("agent ready", "agent_id", ag.ID(), "model", cfg.Model, "functions", reg.Len())

	var opts []agent.RoundOption
	if f.noSave {
		opts = append(opts, agent.WithoutSave())
	}

	prompts := []string{strings.Join(args, " ")}
	if len(args) == 0 {
		prompts = nil
		sc := bufio.NewScanner(a.stdin)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				prompts = append(prompts, line)
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read prompts: %w", err)
		}
	}

	for _, prompt := range prompts {
		answer, err := ag.Run(ctx, prompt, opts...)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(a.stdout, answer); err != nil {
			return err
		}
	}

	path := f.transcript
	if path == "" {
		path = cfg.Transcript
	}
	if path != "" {
		if err := transcript.SaveFile(path, ag.History()); err != nil {
			return err
		}
		logger.Info("transcript written", "path", path)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{newCompleter: defaultCompleter, stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
