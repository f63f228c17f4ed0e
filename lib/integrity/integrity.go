// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package integrity decides whether a connecting device program is one
// the server accepts. Devices report the name and size of their own
// executable during the handshake; an [Oracle] answers yes or no.
//
// The check is a speed bump against stale or foreign clients, not an
// authentication mechanism: the device reports its own values.
package integrity

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Oracle reports whether a program (name, size) pair is allowed.
// Implementations must be safe for concurrent use.
type Oracle interface {
	Verify(name string, size int64) bool
}

// Program is one allowed (name, size) pair.
type Program struct {
	Name string `yaml:"name"`
	Size int64  `yaml:"size"`
}

// AllowList accepts exactly the programs it was built with. It is
// read-only after construction.
type AllowList struct {
	programs map[Program]struct{}
}

// NewAllowList builds an allow list from programs. Duplicates are
// harmless.
func NewAllowList(programs ...Program) *AllowList {
	list := &AllowList{programs: make(map[Program]struct{}, len(programs))}
	for _, program := range programs {
		list.programs[program] = struct{}{}
	}
	return list
}

// Verify reports whether (name, size) is on the list.
func (l *AllowList) Verify(name string, size int64) bool {
	_, ok := l.programs[Program{Name: name, Size: size}]
	return ok
}

// Len returns the number of distinct allowed programs.
func (l *AllowList) Len() int {
	return len(l.programs)
}

// AllowAll accepts every program. For development configurations only.
type AllowAll struct{}

// Verify always reports true.
func (AllowAll) Verify(string, int64) bool { return true }

// ReadAllowList parses "name,size" lines from r. Blank lines and lines
// starting with '#' are ignored. Malformed lines are logged and
// skipped.
func ReadAllowList(r io.Reader, source string, logger *slog.Logger) ([]Program, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var programs []Program
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		program, err := parseLine(line)
		if err != nil {
			logger.Warn("skipping allow-list line", "source", source, "line", lineNumber, "error", err)
			continue
		}
		programs = append(programs, program)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading allow list %s: %w", source, err)
	}
	return programs, nil
}

// LoadAllowListFile reads an allow-list file. A missing file is an
// error: a configured path that does not exist would otherwise reject
// every device with no hint why.
func LoadAllowListFile(path string, logger *slog.Logger) ([]Program, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("allow list %s does not exist", path)
		}
		return nil, fmt.Errorf("opening allow list: %w", err)
	}
	defer file.Close()
	return ReadAllowList(file, path, logger)
}

func parseLine(line string) (Program, error) {
	name, sizeText, found := strings.Cut(line, ",")
	if !found {
		return Program{}, errors.New("missing ',' separator")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Program{}, errors.New("empty program name")
	}
	size, err := strconv.ParseInt(strings.TrimSpace(sizeText), 10, 64)
	if err != nil {
		return Program{}, fmt.Errorf("size: %w", err)
	}
	if size < 0 {
		return Program{}, fmt.Errorf("size %d is negative", size)
	}
	return Program{Name: name, Size: size}, nil
}
