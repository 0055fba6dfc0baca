package codegen

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Evaluator consumes generated bindings
type Evaluator interface {
	Eval(src Source) error
}

// FileSink writes every binding to <dir>/<ClassName>.js
type FileSink struct {
	dir string
}

// NewFileSink creates a sink writing under dir
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Eval writes src, replacing any previous binding of the same contract
func (s *FileSink) Eval(src Source) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bindings dir: %w", err)
	}

	name := unsafeFileChars.ReplaceAllString(src.ClassName, "_") + ".js"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(src.Code), 0o644); err != nil {
		return fmt.Errorf("failed to write binding %s: %w", path, err)
	}

	slog.Debug("Binding written", "contract", src.ClassName, "path", path)
	return nil
}

// DiscardSink drops every binding
type DiscardSink struct{}

// Eval does nothing
func (DiscardSink) Eval(src Source) error {
	return nil
}
