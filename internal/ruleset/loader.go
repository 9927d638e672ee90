// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ruleset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"l7classd/internal/clerr"
	"l7classd/internal/logx"
	"l7classd/internal/markval"
)

// LoadFile parses a rule file per spec.md §6 and returns a compiled
// RuleSet. Any malformed line, unrecognized proto, missing required
// key, or invalid regular expression is a fatal configuration error.
func LoadFile(path string, log *logx.Logger) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, clerr.Wrap(err, clerr.KindFatalConfig, "opening rule file "+path)
	}
	defer f.Close()

	rs, err := Load(f, log)
	if err != nil {
		return nil, clerr.Wrap(err, clerr.KindFatalConfig, "parsing rule file "+path)
	}
	return rs, nil
}

// Load parses rule-file contents from r. Blank lines and lines
// beginning with "#" are ignored; every other line is a whitespace-
// separated sequence of key=value pairs describing one rule.
func Load(r io.Reader, log *logx.Logger) (*RuleSet, error) {
	var rules []*Rule

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseRuleLine(line, log)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return New(rules), nil
}

func parseRuleLine(line string, log *logx.Logger) (*Rule, error) {
	fields := strings.Fields(line)

	var (
		markSet, protoSet            bool
		mark                         int64
		proto                        Protocol
		method, methodRe, urlRe      string
		methodSet, methodReSet       bool
		urlSet                       bool
		urlMaxSize                   int
		urlMaxSizeSet                bool
		err                          error
	)

	for _, field := range fields {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed key=value field %q", field)
		}
		key, val := kv[0], kv[1]

		switch key {
		case "mark":
			mark, err = strconv.ParseInt(val, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid mark %q: %w", val, err)
			}
			markSet = true
		case "proto":
			proto, err = ParseProtocol(val)
			if err != nil {
				return nil, err
			}
			protoSet = true
		case "method":
			method = val
			methodSet = true
		case "method_re":
			methodRe = val
			methodReSet = true
		case "url":
			urlRe = val
			urlSet = true
		case "url_maxsize":
			urlMaxSize, err = strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("invalid url_maxsize %q: %w", val, err)
			}
			urlMaxSizeSet = true
		default:
			return nil, fmt.Errorf("unrecognized key %q", key)
		}
	}

	if !markSet {
		return nil, fmt.Errorf("missing required key 'mark'")
	}
	if !protoSet {
		return nil, fmt.Errorf("missing required key 'proto'")
	}

	rule := &Rule{Protocol: proto, Mark: markval.Mark(mark)}

	// method vs method_re: mutually exclusive, method_re wins if both
	// are present (spec.md §9(b), an explicitly flagged open question).
	switch {
	case methodReSet && methodSet:
		if log != nil {
			log.Infof("rule line has both method and method_re; method_re takes precedence: %q", line)
		}
		rule.Method, err = MethodRegex(methodRe)
	case methodReSet:
		rule.Method, err = MethodRegex(methodRe)
	case methodSet:
		rule.Method, err = MethodLiteral(method)
	}
	if err != nil {
		return nil, fmt.Errorf("compiling method pattern: %w", err)
	}

	switch {
	case urlMaxSizeSet && urlSet:
		return nil, fmt.Errorf("url and url_maxsize are mutually exclusive")
	case urlSet:
		rule.URL, err = URLRegex(urlRe)
	case urlMaxSizeSet:
		rule.URL, err = URLMaxSize(urlMaxSize)
	}
	if err != nil {
		return nil, fmt.Errorf("compiling url pattern: %w", err)
	}

	return rule, nil
}
