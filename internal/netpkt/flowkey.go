// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netpkt

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtoName renders the L4 protocol number the way the flow-key
// grammar requires: "tcp", "udp", or "l4-unk-<n>".
func ProtoName(l4Proto uint8) string {
	switch l4Proto {
	case protoTCP:
		return "tcp"
	case protoUDP:
		return "udp"
	default:
		return "l4-unk-" + strconv.Itoa(int(l4Proto))
	}
}

// FlowKey renders the canonical flow-key string (spec.md §3/§6):
//
//	"<proto> src=<a> dst=<b> sport=<p> dport=<q>"
func FlowKey(l4Proto uint8, src, dst string, sport, dport uint16) string {
	return fmt.Sprintf("%s src=%s dst=%s sport=%d dport=%d",
		ProtoName(l4Proto), src, dst, sport, dport)
}

// KeyPair returns the forward and reverse flow keys for a parsed
// packet: forward uses (src,sport)->(dst,dport) as observed, reverse
// swaps them.
func KeyPair(pkt Packet) (forward, reverse string) {
	src, dst := pkt.SrcIP.String(), pkt.DstIP.String()
	forward = FlowKey(pkt.L4Proto, src, dst, pkt.SrcPort, pkt.DstPort)
	reverse = FlowKey(pkt.L4Proto, dst, src, pkt.DstPort, pkt.SrcPort)
	return forward, reverse
}

// ParsedKey is the decomposed form of a flow-key string, used by
// Reverse and by the round-trip tests.
type ParsedKey struct {
	Proto string
	Src   string
	Dst   string
	Sport uint16
	Dport uint16
}

// ParseKey decomposes a flow-key string produced by FlowKey. It is
// the formatter's exact inverse for all TCP/UDP-over-IPv4/IPv6 keys.
func ParseKey(key string) (ParsedKey, error) {
	var pk ParsedKey
	fields := strings.Fields(key)
	if len(fields) != 5 {
		return pk, fmt.Errorf("netpkt: malformed flow key %q", key)
	}
	pk.Proto = fields[0]

	for _, f := range fields[1:] {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return pk, fmt.Errorf("netpkt: malformed flow key field %q", f)
		}
		switch kv[0] {
		case "src":
			pk.Src = kv[1]
		case "dst":
			pk.Dst = kv[1]
		case "sport":
			v, err := strconv.ParseUint(kv[1], 10, 16)
			if err != nil {
				return pk, fmt.Errorf("netpkt: malformed sport in %q: %w", key, err)
			}
			pk.Sport = uint16(v)
		case "dport":
			v, err := strconv.ParseUint(kv[1], 10, 16)
			if err != nil {
				return pk, fmt.Errorf("netpkt: malformed dport in %q: %w", key, err)
			}
			pk.Dport = uint16(v)
		default:
			return pk, fmt.Errorf("netpkt: unknown flow key field %q", f)
		}
	}
	return pk, nil
}

// Reverse swaps the addresses and ports of a flow key, returning the
// key for the opposite direction of the same flow.
func Reverse(key string) (string, error) {
	pk, err := ParseKey(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s src=%s dst=%s sport=%d dport=%d",
		pk.Proto, pk.Dst, pk.Src, pk.Dport, pk.Sport), nil
}
