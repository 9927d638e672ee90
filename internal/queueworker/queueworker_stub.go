// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package queueworker

import (
	"context"
	"fmt"

	"l7classd/internal/logx"
)

// Worker is a stub for non-Linux systems: NFQUEUE is Linux-only.
type Worker struct{}

// New always fails off Linux.
func New(cfg Config, log *logx.Logger) (*Worker, error) {
	return nil, fmt.Errorf("queueworker: nfqueue is only supported on linux")
}

// Run never blocks on a stub Worker.
func (w *Worker) Run(ctx context.Context) error {
	return fmt.Errorf("queueworker: nfqueue is only supported on linux")
}
