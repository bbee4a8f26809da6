package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/isdmx/scriptbox/executor"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// report is the structured form of an outcome.
type report struct {
	OK         bool         `json:"ok" yaml:"ok"`
	Value      any          `json:"value,omitempty" yaml:"value,omitempty"`
	Text       string       `json:"text,omitempty" yaml:"text,omitempty"`
	Output     string       `json:"output,omitempty" yaml:"output,omitempty"`
	Error      *reportError `json:"error,omitempty" yaml:"error,omitempty"`
	SessionID  string       `json:"session_id" yaml:"session_id"`
	State      string       `json:"state" yaml:"state"`
	Operations uint64       `json:"operations" yaml:"operations"`
	DurationMS int64        `json:"duration_ms" yaml:"duration_ms"`
}

type reportError struct {
	Kind    string `json:"kind" yaml:"kind"`
	Limit   string `json:"limit,omitempty" yaml:"limit,omitempty"`
	Message string `json:"message" yaml:"message"`
	Line    int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column  int    `json:"column,omitempty" yaml:"column,omitempty"`
}

func newReport(out executor.Outcome) report {
	r := report{
		OK:         out.OK(),
		Output:     out.Output,
		SessionID:  out.SessionID,
		State:      out.State.String(),
		Operations: out.Operations,
		DurationMS: out.Duration.Milliseconds(),
	}
	if out.OK() {
		r.Value = out.Value.ToAny()
		r.Text = out.Text
		return r
	}
	r.Error = &reportError{
		Kind:    out.Err.Kind.String(),
		Limit:   out.Err.Limit.String(),
		Message: out.Err.Message,
		Line:    out.Err.Line,
		Column:  out.Err.Column,
	}
	return r
}

// render writes out in format. Text mode sends script output and the value
// to stdout and errors to stderr.
func render(stdout, stderr io.Writer, format string, out executor.Outcome) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(newReport(out))
	case formatYAML:
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(newReport(out)); err != nil {
			return err
		}
		return enc.Close()
	}

	if out.Output != "" {
		fmt.Fprint(stdout, out.Output)
		if !strings.HasSuffix(out.Output, "\n") {
			fmt.Fprintln(stdout)
		}
	}
	if !out.OK() {
		fmt.Fprintf(stderr, "Error: %v\n", out.Err)
		return nil
	}
	fmt.Fprintln(stdout, out.Text)
	return nil
}
