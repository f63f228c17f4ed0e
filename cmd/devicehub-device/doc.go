// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Devicehub-device is the interactive device program. It connects to a
// devicehub server, authenticates its user, binds a device id and
// reports its own executable for the integrity check, then reads
// commands from stdin until EOF.
//
// # Usage
//
//	devicehub-device <serverAddress> [<serverPort>] <deviceId> <userId>
//	    [--images DIR] [--received DIR] [--temperatures FILE]
//	    [--program PATH] [--verbose]
//
// serverAddress may carry the port itself ("host:12345"); otherwise the
// port argument, or 12345, is used. The password is read without echo
// when stdin is a terminal. If the device id is already online the
// program asks for another.
//
// # Commands
//
//	CREATE <dm>          create a domain owned by this user
//	ADD <user> <dm>      give user read access to dm
//	RD <dm>              register this device in dm
//	ET <float>           report a temperature
//	EI <file>            send <images>/<file> as this device's image
//	RT <dm>              append dm's latest readings to the temperatures file
//	RI <user>:<device>   save that device's image to <received>/<user>_<device>.jpg
package main
