// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package classify implements the per-connection protocol classifier
// state machine (spec.md §4.4): a direction-aware HTTP line parser
// that inspects only the first line of each side's buffer and,
// eventually, produces a terminal mark.
package classify

import (
	"bytes"
	"regexp"

	"l7classd/internal/markval"
	"l7classd/internal/ruleset"
)

// ProtocolGuess is the classifier's current belief about the
// application protocol carried by a connection.
type ProtocolGuess int

const (
	Unknown ProtocolGuess = iota
	Http
	Ftp
	Other
)

// Direction records which side of the flow plays which HTTP role.
// It is three-valued because an HTTP response may arrive before the
// request and fix the orientation without yet classifying
// (spec.md §9).
type Direction int

const (
	DirUnknown Direction = iota
	DirIngressIsClient
	DirIngressIsServer
)

var (
	httpRequestLine  = regexp.MustCompile(`(?i)^([a-z]+) (.*) HTTP(/.*)?\r?$`)
	httpResponseLine = regexp.MustCompile(`(?i)^HTTP(/[0-9.]+)? [0-9]+`)
)

// Matcher looks up a classification mark for an HTTP request. It is
// satisfied by *ruleset.RuleSet.
type Matcher interface {
	Match(proto ruleset.Protocol, method, url string) markval.Mark
}

// State is the classifier attached to one connection entry. The zero
// value is ready to use.
type State struct {
	Guess ProtocolGuess

	// EgressHint / IngressHint are bytes permanently consumed from
	// each direction's buffer. The HTTP path only ever inspects the
	// first line of a buffer, so it never advances either hint; both
	// remain 0 for the lifetime of an HTTP classification attempt.
	EgressHint  uint32
	IngressHint uint32

	Direction  Direction
	Classified bool
	Mark       markval.Mark
}

// Update is called whenever either buffer has grown. egress and
// ingress are the full retained buffer contents for each direction
// (already truncated by any prior hint, per the entry's invariant
// that buffer.size == bytes - hint). It returns true once the
// classification is terminal.
func (s *State) Update(ingress, egress []byte, m Matcher) bool {
	if s.Classified {
		return true
	}

	if s.Guess == Unknown {
		s.Guess = guessProtocol(ingress, egress)
		switch s.Guess {
		case Other:
			s.Mark = markval.NoMatch
			s.Classified = true
		default:
			// Unknown stays pending; Http/Ftp have a classifier but
			// haven't reached a terminal decision yet either.
			s.Mark = markval.NoMatchYet
		}
	}

	if s.Guess == Http {
		s.updateHTTP(ingress, egress, m)
	}
	// Ftp guess is reserved; spec.md treats FTP classification as a
	// planned extension with no matching logic yet.

	return s.Classified
}

// guessProtocol inspects the first line of each non-empty buffer. If
// either side's first line looks like an HTTP request or response,
// the guess becomes Http. If both sides have a complete first line
// and neither matched, the guess becomes Other. Otherwise it stays
// Unknown until more data arrives.
func guessProtocol(ingress, egress []byte) ProtocolGuess {
	enoughMaterial := len(ingress) > 0 && len(egress) > 0

	if len(ingress) > 0 {
		if line, ok := firstLine(ingress); ok {
			if looksHTTP(line) {
				return Http
			}
		} else {
			enoughMaterial = false
		}
	}
	if len(egress) > 0 {
		if line, ok := firstLine(egress); ok {
			if looksHTTP(line) {
				return Http
			}
		} else {
			enoughMaterial = false
		}
	}

	if enoughMaterial {
		return Other
	}
	return Unknown
}

func looksHTTP(line []byte) bool {
	return httpRequestLine.Match(line) || httpResponseLine.Match(line)
}

// firstLine returns the buffer's first line (without its terminator)
// and true, or false if no full line has arrived yet.
func firstLine(buf []byte) ([]byte, bool) {
	idx := bytes.IndexAny(buf, "\r\n")
	if idx < 0 {
		return nil, false
	}
	return buf[:idx], true
}

func (s *State) updateHTTP(ingress, egress []byte, m Matcher) {
	// The HTTP classifier only ever looks at the first line, so both
	// hints must still be at their initial value.
	if s.EgressHint != 0 || s.IngressHint != 0 {
		panic("classify: HTTP classifier invoked with non-zero buffer hint")
	}

	if len(ingress) > 0 && s.Direction != DirIngressIsServer {
		s.handleBuffer(ingress, true, m)
	}
	if len(egress) > 0 && s.Direction != DirIngressIsClient {
		s.handleBuffer(egress, false, m)
	}
}

// Reverse swaps the egress/ingress hints and flips the client/server
// orientation, leaving DirUnknown unchanged (spec.md §4.4 Reversal).
// It is used when a flow's directionality turns out to be backwards
// from what conntrack or the queue first assumed.
func (s *State) Reverse() {
	s.EgressHint, s.IngressHint = s.IngressHint, s.EgressHint
	switch s.Direction {
	case DirIngressIsServer:
		s.Direction = DirIngressIsClient
	case DirIngressIsClient:
		s.Direction = DirIngressIsServer
	}
}

func (s *State) handleBuffer(buf []byte, ingress bool, m Matcher) {
	line, ok := firstLine(buf)
	if !ok {
		return
	}

	if match := httpRequestLine.FindSubmatch(line); match != nil {
		method, url := string(match[1]), string(match[2])
		s.Mark = m.Match(ruleset.HTTP, method, url)
		if ingress {
			s.Direction = DirIngressIsClient
		} else {
			s.Direction = DirIngressIsServer
		}
		s.Classified = true
		return
	}

	if httpResponseLine.Match(line) {
		if ingress {
			s.Direction = DirIngressIsServer
		} else {
			s.Direction = DirIngressIsClient
		}
		return
	}

	s.Mark = markval.NoMatch
	s.Classified = true
}
