// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command l7classctl is a thin, read-only inspection client for
// l7classd's control socket.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"l7classd/internal/ctlsock"
)

func main() {
	sockPath := flag.String("socket", ctlsock.DefaultSocketPath, "control socket path")
	flag.Parse()

	if flag.NArg() == 0 || flag.Arg(0) != "dump" {
		fmt.Fprintln(os.Stderr, "usage: l7classctl [--socket path] dump")
		os.Exit(2)
	}

	reply, err := ctlsock.Dump(*sockPath)
	if err != nil {
		log.Fatalf("dump failed: %v", err)
	}

	for _, e := range reply.Entries {
		fmt.Printf("%-60s tracked=%-5v mark=%-4d definitive=%-5v pkts=%d/%d bytes=%d/%d last_activity=%s\n",
			e.Key, e.Tracked, e.Mark, e.Definitive,
			e.PacketsEgress, e.PacketsIngress, e.BytesEgress, e.BytesIngress,
			e.LastActivity.Format("2006-01-02T15:04:05Z07:00"))
	}
}
