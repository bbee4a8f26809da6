package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/isdmx/scriptbox/executor"
	"github.com/isdmx/scriptbox/value"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Evaluate a script (stateless execution)",
		Long: `Evaluate a script and print the value of its final expression.

Code can be provided via:
  - File argument: scriptctl run script.rhai
  - Inline flag: scriptctl run -c '40 + 2'
  - Stdin: echo '40 + 2' | scriptctl run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			source, err := readSource(cmd, code, args)
			if err != nil {
				return err
			}
			return execute(cmd, executor.Request{Script: source})
		},
	}
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	return cmd
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <entry> [json-args...]",
		Short: "Load a script and call one of its functions",
		Long: `Load a script and call the named function with the given arguments.

Each argument is parsed as JSON; anything that is not valid JSON is passed as
a string, so 'World' and '"World"' are the same argument.

  scriptctl call greet World -f greet.rhai
  scriptctl call add 1 2 -c 'fn add(a, b) { a + b }'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			file, _ := cmd.Flags().GetString("file")
			var files []string
			if file != "" {
				files = []string{file}
			}
			source, err := readSource(cmd, code, files)
			if err != nil {
				return err
			}
			return execute(cmd, executor.Request{
				Script:     source,
				EntryPoint: args[0],
				Args:       value.ParseArgs(args[1:]),
			})
		},
	}
	cmd.Flags().StringP("code", "c", "", "Script source")
	cmd.Flags().StringP("file", "f", "", "Script file")
	return cmd
}

// readSource takes the script from code, the first file, or piped stdin.
func readSource(cmd *cobra.Command, code string, files []string) (string, error) {
	switch {
	case code != "":
		return code, nil
	case len(files) > 0:
		data, err := os.ReadFile(files[0])
		if err != nil {
			return "", fmt.Errorf("failed to read script: %w", err)
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no script given: pass a file, -c code, or pipe it on stdin")
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("no script given: pass a file, -c code, or pipe it on stdin")
	}
	return string(data), nil
}

func execute(cmd *cobra.Command, req executor.Request) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	exec, err := newExecutor(cmd)
	if err != nil {
		return err
	}

	out := exec.Run(cmd.Context(), req)
	if err := render(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, out); err != nil {
		return err
	}
	if !out.OK() {
		return errScriptFailed
	}
	return nil
}
