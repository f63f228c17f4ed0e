// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package deviceclient drives the devicehub protocol from the device
// side. The interactive device program and the end-to-end tests use
// it.
//
// Methods return the server's status code verbatim; interpreting it is
// the caller's business. A non-nil error means the connection itself
// failed (or an argument could not be sent) and the client should be
// closed.
//
// A Client is not safe for concurrent use: the protocol is strictly
// one command, one reply.
package deviceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"unicode"

	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/wire"
)

// ErrInvalidArgument is returned, without contacting the server, when
// an argument would not survive the server's whitespace split.
var ErrInvalidArgument = errors.New("deviceclient: invalid argument")

// Client is one connection to a devicehub server.
type Client struct {
	conn net.Conn
	wire *wire.Conn

	// MaxPayloadBytes bounds RT and RI payloads. Zero means no limit.
	MaxPayloadBytes int64
}

// Dial connects to address ("host:port").
func Dial(ctx context.Context, address string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("deviceclient: dialing %s: %w", address, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, wire: wire.NewConn(conn, wire.DefaultMaxItemSize)}
}

// Close closes the connection. The server releases the device slot
// when it sees the close.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Authenticate sends the user id and secret and returns OK-NEW-USER,
// OK-USER or WRONG-PWD.
func (c *Client) Authenticate(userID, secret string) (string, error) {
	if err := c.wire.WriteString(userID); err != nil {
		return "", err
	}
	if err := c.wire.WriteString(secret); err != nil {
		return "", err
	}
	return c.wire.ReadString()
}

// BindDevice offers a device id and returns OK-DEVID or NOK-DEVID. On
// NOK-DEVID the caller may offer another id.
func (c *Client) BindDevice(deviceID string) (string, error) {
	if err := c.wire.WriteString(deviceID); err != nil {
		return "", err
	}
	return c.wire.ReadString()
}

// Verify reports the program name and size and returns OK-TESTED or
// NOK-TESTED.
func (c *Client) Verify(programName string, size int64) (string, error) {
	if err := c.wire.WriteString(programName); err != nil {
		return "", err
	}
	if err := c.wire.WriteInt(size); err != nil {
		return "", err
	}
	return c.wire.ReadString()
}

// Command sends a raw command line and returns its status. Use it for
// commands with no payload on either side.
func (c *Client) Command(line string) (string, error) {
	if err := c.wire.WriteString(line); err != nil {
		return "", err
	}
	return c.wire.ReadString()
}

// Create sends CREATE <domain>.
func (c *Client) Create(domain string) (string, error) {
	if err := checkArgs(domain); err != nil {
		return "", err
	}
	return c.Command(device.VerbCreate + " " + domain)
}

// Add sends ADD <user> <domain>.
func (c *Client) Add(userID, domain string) (string, error) {
	if err := checkArgs(userID, domain); err != nil {
		return "", err
	}
	return c.Command(device.VerbAdd + " " + userID + " " + domain)
}

// Join sends RD <domain>, registering this connection's device.
func (c *Client) Join(domain string) (string, error) {
	if err := checkArgs(domain); err != nil {
		return "", err
	}
	return c.Command(device.VerbRegisterDomain + " " + domain)
}

// SendTemperature sends ET <value>.
func (c *Client) SendTemperature(value float32) (string, error) {
	return c.Command(device.VerbSendTemperature + " " + strconv.FormatFloat(float64(value), 'g', -1, 32))
}

// SendImage sends EI <name> followed by the image bytes.
func (c *Client) SendImage(name string, data []byte) (string, error) {
	if err := checkArgs(name); err != nil {
		return "", err
	}
	if err := c.wire.WriteString(device.VerbSendImage + " " + name); err != nil {
		return "", err
	}
	if err := c.wire.WriteBlob(data); err != nil {
		return "", err
	}
	return c.wire.ReadString()
}

// ReadTemperatures sends RT <domain>. On OK the payload holds one
// "user:device -> value" line per reading.
func (c *Client) ReadTemperatures(domain string) (string, []byte, error) {
	if err := checkArgs(domain); err != nil {
		return "", nil, err
	}
	return c.commandWithPayload(device.VerbReadTemperatures + " " + domain)
}

// ReadImage sends RI <user>:<device>. On OK the payload is the image.
func (c *Client) ReadImage(userID, deviceID string) (string, []byte, error) {
	target := device.Identity{User: userID, Device: deviceID}
	if err := target.Validate(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return c.commandWithPayload(device.VerbReadImage + " " + target.String())
}

func (c *Client) commandWithPayload(line string) (string, []byte, error) {
	status, err := c.Command(line)
	if err != nil || status != device.ReplyOK {
		return status, nil, err
	}
	limit := c.MaxPayloadBytes
	if limit <= 0 {
		limit = math.MaxInt64
	}
	payload, err := c.wire.ReadBlob(limit)
	if err != nil {
		return status, nil, err
	}
	return status, payload, nil
}

func checkArgs(args ...string) error {
	for _, arg := range args {
		if arg == "" || strings.IndexFunc(arg, unicode.IsSpace) >= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidArgument, arg)
		}
	}
	return nil
}
