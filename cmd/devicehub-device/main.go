// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/devicehub/lib/deviceclient"
	"github.com/bureau-foundation/devicehub/lib/process"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/version"
)

const usage = `Usage: devicehub-device <serverAddress> [<serverPort>] <deviceId> <userId> [flags]

`

// dialTimeout bounds the initial connection attempt.
const dialTimeout = 10 * time.Second

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		process.UsageError(err, usage)
	}
	if opts.showVersion {
		version.Print("devicehub-device")
		return
	}
	if err := run(opts); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	address         string
	deviceID        string
	userID          string
	imagesDir       string
	receivedDir     string
	temperatureFile string
	program         string
	verbose         bool
	showVersion     bool
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("devicehub-device", pflag.ContinueOnError)
	flagSet.StringVar(&opts.imagesDir, "images", "clientImages", "directory EI reads images from")
	flagSet.StringVar(&opts.receivedDir, "received", "receivedImages", "directory RI writes images to")
	flagSet.StringVar(&opts.temperatureFile, "temperatures", "temperature_data.txt", "file RT appends readings to")
	flagSet.StringVar(&opts.program, "program", "", "program reported for the integrity check (default: this executable)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log connection details")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}

	positional := flagSet.Args()
	var host, port string
	switch len(positional) {
	case 3:
		host = positional[0]
		if h, p, err := net.SplitHostPort(host); err == nil {
			host, port = h, p
		}
	case 4:
		host, port = positional[0], positional[1]
	default:
		return nil, fmt.Errorf("expected 3 or 4 arguments, got %d", len(positional))
	}
	if port == "" {
		port = strconv.Itoa(device.DefaultPort)
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return nil, fmt.Errorf("invalid server port %q", port)
	}
	opts.address = net.JoinHostPort(host, port)
	opts.deviceID = positional[len(positional)-2]
	opts.userID = positional[len(positional)-1]

	if err := device.ValidateUserID(opts.userID); err != nil {
		return nil, err
	}
	return opts, nil
}

// newLogger mirrors the server's handler choice: text on a terminal,
// JSON otherwise. Only warnings surface unless verbose.
func newLogger(verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func run(opts *options) error {
	logger := newLogger(opts.verbose)

	program := opts.program
	if program == "" {
		executable, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locating own executable: %w", err)
		}
		program = executable
	}
	info, err := os.Stat(program)
	if err != nil {
		return fmt.Errorf("reading program for integrity check: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	client, err := deviceclient.Dial(ctx, opts.address)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Debug("connected", "address", opts.address)

	console := &console{
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		console.readPassword = func() (string, error) {
			secret, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stdout)
			return string(secret), err
		}
	}

	d := &deviceSession{
		client:          client,
		console:         console,
		logger:          logger,
		userID:          opts.userID,
		deviceID:        opts.deviceID,
		programName:     filepath.Base(program),
		programSize:     info.Size(),
		imagesDir:       opts.imagesDir,
		receivedDir:     opts.receivedDir,
		temperatureFile: opts.temperatureFile,
	}
	if err := d.handshake(); err != nil {
		return err
	}
	return d.prompt()
}

// console is the line-oriented terminal the device talks through.
type console struct {
	in  *bufio.Scanner
	out io.Writer

	// readPassword reads a secret without echo. Nil reads a plain
	// line, for piped input.
	readPassword func() (string, error)
}

// ask prints prompt and returns the next input line. io.EOF means the
// user closed stdin.
func (c *console) ask(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *console) askPassword(prompt string) (string, error) {
	if c.readPassword == nil {
		return c.ask(prompt)
	}
	fmt.Fprint(c.out, prompt)
	return c.readPassword()
}

func (c *console) say(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}
