// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/devicehub/lib/deviceclient"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
)

// Handshake refusals. The server closes the connection after each.
var (
	errWrongPassword = errors.New("wrong password")
	errNotValidated  = errors.New("program not validated by server")
)

// deviceSession is one connected device driving the server from the
// console.
type deviceSession struct {
	client  *deviceclient.Client
	console *console
	logger  *slog.Logger

	userID      string
	deviceID    string
	programName string
	programSize int64

	imagesDir       string
	receivedDir     string
	temperatureFile string
}

// handshake authenticates, binds a device id (asking for another while
// the server refuses) and passes the integrity check.
func (d *deviceSession) handshake() error {
	secret, err := d.console.askPassword("Enter password: ")
	if err != nil {
		return err
	}
	status, err := d.client.Authenticate(d.userID, secret)
	if err != nil {
		return err
	}
	switch status {
	case device.ReplyNewUser:
		d.console.say("User registered")
	case device.ReplyUser:
		d.console.say("User authenticated")
	case device.ReplyWrongPassword:
		return errWrongPassword
	default:
		return fmt.Errorf("unexpected authentication reply %q", status)
	}

	for {
		status, err := d.client.BindDevice(d.deviceID)
		if err != nil {
			return err
		}
		if status == device.ReplyDeviceBound {
			d.console.say("Device ID registered")
			break
		}
		if status != device.ReplyDeviceTaken {
			return fmt.Errorf("unexpected device reply %q", status)
		}
		d.deviceID, err = d.console.ask(fmt.Sprintf("%s:%s already in use or invalid, enter new ID: ", d.userID, d.deviceID))
		if err != nil {
			return err
		}
	}

	status, err = d.client.Verify(d.programName, d.programSize)
	if err != nil {
		return err
	}
	if status != device.ReplyTested {
		return errNotValidated
	}
	d.console.say("Program validated by server")
	d.logger.Debug("device online", "user", d.userID, "device", d.deviceID)
	return nil
}

// prompt reads and runs commands until stdin closes. A connection
// failure ends it with an error.
func (d *deviceSession) prompt() error {
	d.console.say("\nAvailable commands:\n\n" +
		"CREATE <dm>\n" +
		"ADD <user1> <dm>\n" +
		"RD <dm>\n" +
		"ET <float>\n" +
		"EI <filename.jpg>\n" +
		"RT <dm>\n" +
		"RI <user-id>:<dev_id>")
	for {
		line, err := d.console.ask("\nEnter command: ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		message, err := d.execute(line)
		if err != nil {
			return err
		}
		d.console.say("%s", message)
	}
}

// execute runs one command line and returns what to show the user. A
// non-nil error means the connection is unusable.
func (d *deviceSession) execute(line string) (string, error) {
	fields := strings.Fields(line)
	verb, args := fields[0], fields[1:]

	switch verb {
	case device.VerbCreate, device.VerbAdd, device.VerbRegisterDomain, device.VerbSendTemperature:
		return d.client.Command(strings.Join(fields, " "))

	case device.VerbSendImage:
		if len(args) != 1 {
			return device.ReplyInvalid, nil
		}
		data, err := os.ReadFile(filepath.Join(d.imagesDir, filepath.Base(args[0])))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "File not found", nil
			}
			return fmt.Sprintf("Cannot read image: %v", err), nil
		}
		return d.client.SendImage(args[0], data)

	case device.VerbReadTemperatures:
		if len(args) != 1 {
			return device.ReplyInvalid, nil
		}
		status, payload, err := d.client.ReadTemperatures(args[0])
		if err != nil || status != device.ReplyOK {
			return status, err
		}
		if err := appendFile(d.temperatureFile, payload); err != nil {
			d.logger.Error("saving temperatures", "file", d.temperatureFile, "error", err)
			return fmt.Sprintf("%s (not saved: %v)", status, err), nil
		}
		return fmt.Sprintf("%s, %d bytes appended to %s", status, len(payload), d.temperatureFile), nil

	case device.VerbReadImage:
		if len(args) != 1 {
			return device.ReplyInvalid, nil
		}
		target, err := device.ParseIdentity(args[0])
		if err != nil {
			return device.ReplyInvalid, nil
		}
		status, payload, err := d.client.ReadImage(target.User, target.Device)
		if err != nil || status != device.ReplyOK {
			return status, err
		}
		path := filepath.Join(d.receivedDir, imageFileName(target))
		if err := writeImage(path, payload); err != nil {
			d.logger.Error("saving image", "file", path, "error", err)
			return fmt.Sprintf("%s (not saved: %v)", status, err), nil
		}
		return fmt.Sprintf("%s, saved to %s", status, path), nil

	default:
		return device.ReplyInvalid, nil
	}
}

// imageFileName names the file RI saves target's image to. Path
// separators in the ids are replaced so the file stays in the received
// directory.
func imageFileName(target device.Identity) string {
	name := target.User + "_" + target.Device + ".jpg"
	return strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator {
			return '_'
		}
		return r
	}, name)
}

func appendFile(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeImage(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
