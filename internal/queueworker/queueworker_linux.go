// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package queueworker

import (
	"context"
	"fmt"

	"github.com/florianl/go-nfqueue/v2"

	"l7classd/internal/clerr"
	"l7classd/internal/logx"
)

// Worker owns one NFQUEUE handle and runs the verdict loop until its
// context is canceled.
type Worker struct {
	cfg Config
	log *logx.Logger
	q   *nfqueue.Nfqueue
}

// New opens the queue. A bind failure is a fatal configuration error
// per spec.md §7.
func New(cfg Config, log *logx.Logger) (*Worker, error) {
	q, err := nfqueue.Open(&nfqueue.Config{
		NfQueue:      cfg.QueueNum,
		MaxQueueLen:  1024,
		Copymode:     nfqueue.NfQnlCopyPacket,
		MaxPacketLen: 0xffff,
	})
	if err != nil {
		return nil, clerr.Wrap(err, clerr.KindFatalConfig, fmt.Sprintf("cannot bind nfqueue %d", cfg.QueueNum))
	}
	return &Worker{cfg: cfg, log: log, q: q}, nil
}

// Run registers the packet hook and blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	hook := func(a nfqueue.Attribute) int {
		if a.PacketID == nil || a.Payload == nil {
			return 0
		}
		var kernelMark uint32
		if a.Mark != nil {
			kernelMark = *a.Mark
		}

		mark, setMark := handlePacket(w.cfg, kernelMark, *a.Payload)
		var err error
		if setMark {
			err = w.q.SetVerdictWithMark(*a.PacketID, nfqueue.NfAccept, int(mark))
		} else {
			err = w.q.SetVerdict(*a.PacketID, nfqueue.NfAccept)
		}
		if err != nil {
			// A transient kernel-write failure never changes the
			// packet's fate (it was already going to be accepted by
			// the kernel's default queue behavior); just log it.
			w.log.Errorf("set verdict failed: %v", err)
		}
		return 0
	}

	errFn := func(e error) int {
		if e == nil {
			return 0
		}
		w.log.Infof("nfqueue read error: %v", e)
		return 0
	}

	if err := w.q.RegisterWithErrorFunc(ctx, hook, errFn); err != nil {
		return clerr.Wrap(err, clerr.KindFatalConfig, "cannot register nfqueue hook")
	}

	<-ctx.Done()
	return w.q.Close()
}
