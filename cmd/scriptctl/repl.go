package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/isdmx/scriptbox/executor"
)

const (
	prompt         = ">>> "
	continuePrompt = "... "
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive read-eval-print loop",
		Long: `Start an interactive REPL.

Each entry runs as an independent execution with a fresh session, so
variables do not carry over between entries.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.scriptctl_history)")
	return cmd
}

func runRepl(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	exec, err := newExecutor(cmd)
	if err != nil {
		return err
	}

	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			historyFile = filepath.Join(home, ".scriptctl_history")
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "scriptctl %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", exec.Backend())
	return repl(cmd.Context(), rl, exec, format, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// lineReader is the part of *readline.Instance the loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

func repl(ctx context.Context, rl lineReader, exec *executor.Executor, format string, stdout, stderr io.Writer) error {
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(prompt)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(continuePrompt)
			continue
		}
		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(prompt)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		out := exec.Execute(ctx, line)
		if err := render(stdout, stderr, format, out); err != nil {
			return err
		}
	}
}
