// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
)

// Release builds stamp these with -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/devicehub/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// A plain "go build" from a checkout leaves them unset and Info reads
// the VCS stamp the Go toolchain embeds instead.
var (
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""

	// Version is bumped by hand at release time.
	Version = "0.1.0-dev"
)

// build describes the running binary.
type build struct {
	commit string
	dirty  bool
	time   string
}

func current() build {
	b := build{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if b.commit != "" {
		return b
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				b.commit = setting.Value
				if len(b.commit) > 12 {
					b.commit = b.commit[:12]
				}
			case "vcs.modified":
				b.dirty = setting.Value == "true"
			case "vcs.time":
				if b.time == "" {
					b.time = setting.Value
				}
			}
		}
	}
	if b.commit == "" {
		b.commit = "unknown"
	}
	if b.time == "" {
		b.time = "unknown"
	}
	return b
}

// Info is the one-line version: "0.1.0-dev (abc1234, 2026-03-01T...)".
func Info() string {
	b := current()
	commit := b.commit
	if b.dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, b.time)
}

// Full adds the Go toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Fprint writes the --version output for the named binary.
func Fprint(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n", name, Full())
}

// Print is Fprint to stdout.
func Print(name string) {
	Fprint(os.Stdout, name)
}
