// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package ctworker

import (
	"context"
	"fmt"

	"l7classd/internal/flow"
	"l7classd/internal/logx"
	"l7classd/internal/metrics"
)

// Worker is a stub for non-Linux systems: conntrack netlink is
// Linux-only.
type Worker struct{}

// New always fails off Linux.
func New(table *flow.Table, m *metrics.Registry, log *logx.Logger) (*Worker, error) {
	return nil, fmt.Errorf("ctworker: conntrack is only supported on linux")
}

// Run never blocks on a stub Worker.
func (w *Worker) Run(ctx context.Context) error {
	return fmt.Errorf("ctworker: conntrack is only supported on linux")
}
