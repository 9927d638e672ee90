// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctlsock exposes the connection table's Snapshot operation
// over a Unix domain socket using net/rpc (spec.md §6 EXPANDED),
// grounded on the teacher's privileged-daemon/thin-client control
// plane split. It carries exactly one read-only RPC.
package ctlsock

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"

	"l7classd/internal/flow"
	"l7classd/internal/logx"
)

// DefaultSocketPath is where l7classd listens and l7classctl connects
// by default.
const DefaultSocketPath = "/var/run/l7classd.sock"

// DumpArgs is unused but kept so the RPC method has a standard
// net/rpc signature (exactly one argument, exactly one reply, one
// error return).
type DumpArgs struct{}

// DumpReply carries every live entry's snapshot.
type DumpReply struct {
	Entries []flow.Snapshot
}

// Server is the RPC receiver registered on the daemon's control
// socket. Its only method, Dump, is read-only.
type Server struct {
	table *flow.Table
}

// Dump implements the Dump RPC: it returns a snapshot of every live
// connection table entry.
func (s *Server) Dump(_ *DumpArgs, reply *DumpReply) error {
	reply.Entries = s.table.Snapshot()
	return nil
}

// Listener wraps the net.Listener and background accept loop so the
// caller can shut it down cleanly.
type Listener struct {
	ln  net.Listener
	log *logx.Logger
}

// Serve creates the control socket at path, registers the Dump RPC
// against table, and starts accepting connections in the background.
// The socket is created with mode 0600: read-only inspection, but
// still privileged, since a connection table can reveal live traffic
// metadata.
func Serve(path string, table *flow.Table, log *logx.Logger) (*Listener, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ctlsock: listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("ctlsock: chmod %s: %w", path, err)
	}

	srv := rpc.NewServer()
	if err := srv.Register(&Server{table: table}); err != nil {
		ln.Close()
		return nil, fmt.Errorf("ctlsock: register RPC service: %w", err)
	}

	l := &Listener{ln: ln, log: log}
	go l.acceptLoop(srv)
	return l, nil
}

func (l *Listener) acceptLoop(srv *rpc.Server) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Errorf("ctlsock accept error: %v", err)
			return
		}
		go srv.ServeConn(conn)
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dump connects to the control socket at path and returns the table
// snapshot. It is the function l7classctl's dump subcommand calls.
func Dump(path string) (DumpReply, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	client, err := rpc.Dial("unix", path)
	if err != nil {
		return DumpReply{}, fmt.Errorf("ctlsock: dial %s: %w", path, err)
	}
	defer client.Close()

	var reply DumpReply
	if err := client.Call("Server.Dump", &DumpArgs{}, &reply); err != nil {
		return DumpReply{}, fmt.Errorf("ctlsock: Dump call: %w", err)
	}
	return reply, nil
}
