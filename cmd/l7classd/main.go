// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command l7classd is a userspace HTTP-aware packet classifier: it
// binds to an NFQUEUE and a conntrack event stream, reconstructs
// per-flow payload, classifies it against a rule set, and returns a
// verdict mark composed with whatever mark the kernel already
// carried.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"l7classd/internal/clerr"
	"l7classd/internal/ctlsock"
	"l7classd/internal/ctworker"
	"l7classd/internal/flow"
	"l7classd/internal/logx"
	"l7classd/internal/markmask"
	"l7classd/internal/metrics"
	"l7classd/internal/queueworker"
	"l7classd/internal/ruleset"
)

func main() {
	queueNum := flag.Uint("queue", 0, "NFQUEUE number to bind")
	maskHex := flag.String("mark_mask", "ffff", "conntrack mark mask (hex, no 0x prefix required)")
	rulesPath := flag.String("rules", "", "path to the rule file (required)")
	sockPath := flag.String("ctlsock", ctlsock.DefaultSocketPath, "control socket path")
	flag.Parse()

	log := logx.New("[l7classd]", os.Stderr)

	if *rulesPath == "" {
		log.Fatalf("%v", clerr.New(clerr.KindFatalConfig, "-rules is required"))
	}

	maskText := strings.TrimPrefix(strings.TrimPrefix(*maskHex, "0x"), "0X")
	maskRaw, err := strconv.ParseUint(maskText, 16, 32)
	if err != nil {
		log.Fatalf("%v", clerr.Wrap(err, clerr.KindFatalConfig, "invalid -mark_mask"))
	}
	mask, err := markmask.Parse(uint32(maskRaw))
	if err != nil {
		log.Fatalf("%v", clerr.Wrap(err, clerr.KindFatalConfig, "invalid -mark_mask"))
	}

	rules, err := ruleset.LoadFile(*rulesPath, log)
	if err != nil {
		log.Fatalf("%v", err)
	}

	table := flow.New(ctworker.IdleTTL)
	m := metrics.New()

	ctl, err := ctlsock.Serve(*sockPath, table, log)
	if err != nil {
		log.Fatalf("%v", clerr.Wrap(err, clerr.KindFatalConfig, "cannot start control socket"))
	}
	defer ctl.Close()

	qCfg := queueworker.Config{
		QueueNum: uint16(*queueNum),
		Mask:     mask,
		Table:    table,
		Matcher:  rules,
		Metrics:  m,
	}
	qw, err := queueworker.New(qCfg, log)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctw, err := ctworker.New(table, m, log)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run(ctx, cancel, log, qw, ctw)
}

type worker interface {
	Run(ctx context.Context) error
}

// run starts the queue worker, the conntrack worker, and a signal
// handler, then blocks until both workers have returned; a signal
// cancels the context, which stops them (spec.md §5 EXPANDED process
// supervision).
func run(ctx context.Context, cancel context.CancelFunc, log *logx.Logger, qw, ctw worker) {
	done := make(chan struct{}, 2)

	go func() {
		if err := qw.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("queue worker exited: %v", err)
		}
		done <- struct{}{}
	}()
	go func() {
		if err := ctw.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("conntrack worker exited: %v", err)
		}
		done <- struct{}{}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, shutting down", sig)
		cancel()
		// A second identical signal falls back to the OS default
		// action per spec.md §6.
		signal.Reset(sig)
	}()

	<-done
	<-done
}
