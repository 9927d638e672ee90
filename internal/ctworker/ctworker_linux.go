// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package ctworker

import (
	"context"
	"time"

	"github.com/ti-mo/conntrack"
	"github.com/ti-mo/netfilter"

	"l7classd/internal/clerr"
	"l7classd/internal/flow"
	"l7classd/internal/logx"
	"l7classd/internal/metrics"
)

// Worker owns a conntrack netlink socket subscribed to NEW and
// DESTROY events for every address family.
type Worker struct {
	conn *conntrack.Conn
	h    *handler
	log  *logx.Logger
}

// New dials the conntrack netlink socket. A dial failure is a fatal
// configuration error per spec.md §7.
func New(table *flow.Table, m *metrics.Registry, log *logx.Logger) (*Worker, error) {
	c, err := conntrack.Dial(nil)
	if err != nil {
		return nil, clerr.Wrap(err, clerr.KindFatalConfig, "cannot dial conntrack netlink socket")
	}
	return &Worker{conn: c, h: newHandler(table, m), log: log}, nil
}

// Run joins the NEW/DESTROY multicast groups and processes events
// until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	evCh := make(chan conntrack.Event, 64)
	groups := []netfilter.NetlinkGroup{netfilter.GroupCTNew, netfilter.GroupCTDestroy}

	errCh, err := w.conn.Listen(evCh, 4, groups)
	if err != nil {
		return clerr.Wrap(err, clerr.KindFatalConfig, "cannot join conntrack multicast groups")
	}
	defer w.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil {
				w.log.Infof("conntrack read error: %v", err)
			}
		case ev := <-evCh:
			if mapped, ok := mapEvent(ev); ok {
				w.h.handle(mapped, time.Now())
			} else {
				w.log.Infof("dropped irrelevant conntrack event: %v", ev.Type)
			}
		}
	}
}

// mapEvent translates a conntrack.Event into the package's (kind,
// attrs) shape, dropping anything outside NEW/DESTROY/TCP/UDP per
// spec.md §4.3.
func mapEvent(ev conntrack.Event) (Event, bool) {
	var kind EventKind
	switch ev.Type {
	case conntrack.EventNew:
		kind = EventNew
	case conntrack.EventDestroy:
		kind = EventDestroy
	default:
		return Event{}, false
	}

	if ev.Flow == nil {
		return Event{}, false
	}
	tuple := ev.Flow.TupleOrig
	proto := tuple.Proto.Protocol
	if proto != 6 && proto != 17 {
		return Event{}, false
	}

	return Event{
		Kind: kind,
		Attrs: Attrs{
			L4Proto: proto,
			SrcIP:   tuple.IP.SourceAddress.String(),
			DstIP:   tuple.IP.DestinationAddress.String(),
			SrcPort: tuple.Proto.SourcePort,
			DstPort: tuple.Proto.DestinationPort,
		},
	}, true
}
