// Package engine hands an assembled stack to the provisioning engine. The
// engine owns reconciliation; objsign only submits templates and reads back
// outputs.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/internal/stack"
)

// Engine submits stacks
type Engine interface {
	Submit(ctx context.Context, s *stack.Stack) error
}

// File writes templates to a directory instead of deploying them
type File struct {
	Dir    string
	Logger *logging.Logger
}

// TemplatePath returns where the stack's template is written
func (f File) TemplatePath(s *stack.Stack) string {
	return filepath.Join(f.Dir, s.Name+".template.json")
}

// Submit implements Engine
func (f File) Submit(_ context.Context, s *stack.Stack) error {
	body, err := s.Template.JSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := f.TemplatePath(s)
	if err := os.WriteFile(path, append(body, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	f.Logger.Info("Wrote %s (%d resources)", path, len(s.Template.Resources))
	return nil
}
