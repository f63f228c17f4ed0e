// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/secret"
)

// Legacy file names inside an import directory.
const (
	LegacyUsersFile   = "users.txt"
	LegacyDevicesFile = "devices.txt"
)

// LegacyImport describes one import of the plain-text layout.
type LegacyImport struct {
	// Dir holds users.txt ("id,secret" lines) and devices.txt
	// ("device,domain" lines). Either file may be absent.
	Dir string

	// Owner is the user every imported device and domain is
	// attributed to. The text layout records devices without their
	// user, so one owner must be chosen. Must appear in users.txt or
	// already exist in the store.
	Owner string

	// Hasher hashes the plaintext secrets from users.txt.
	Hasher *secret.Hasher

	// Now stamps imported records.
	Now time.Time
}

// LegacyReport counts what an import wrote and skipped.
type LegacyReport struct {
	Users   int
	Domains int
	Members int
	Skipped int
}

// ImportLegacy loads the plain-text layout into a store that holds no
// users or domains yet. Malformed and duplicate lines are skipped with
// a warning.
func (s *Store) ImportLegacy(ctx context.Context, legacy LegacyImport) (LegacyReport, error) {
	var report LegacyReport
	if legacy.Hasher == nil {
		return report, fmt.Errorf("store: legacy import: Hasher is required")
	}
	if err := device.ValidateUserID(legacy.Owner); err != nil {
		return report, fmt.Errorf("store: legacy import: owner: %w", err)
	}

	existing, err := s.Load(ctx)
	if err != nil {
		return report, err
	}
	if len(existing.Users) > 0 || len(existing.Domains) > 0 {
		return report, fmt.Errorf("store: legacy import requires an empty store (found %d users, %d domains)",
			len(existing.Users), len(existing.Domains))
	}

	known := make(map[string]bool)
	err = s.readLegacyLines(filepath.Join(legacy.Dir, LegacyUsersFile), func(lineNumber int, fields []string) error {
		id, plaintext := fields[0], fields[1]
		if err := device.ValidateUserID(id); err != nil || plaintext == "" || known[id] {
			s.logger.Warn("skipping legacy user line", "file", LegacyUsersFile, "line", lineNumber)
			report.Skipped++
			return nil
		}
		hash, err := legacy.Hasher.Hash(plaintext)
		if err != nil {
			return fmt.Errorf("hashing secret for %q: %w", id, err)
		}
		if err := s.AppendUser(ctx, device.User{ID: id, SecretHash: hash, CreatedAt: legacy.Now}); err != nil {
			return err
		}
		known[id] = true
		report.Users++
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("store: legacy import: %w", err)
	}
	if !known[legacy.Owner] {
		return report, fmt.Errorf("store: legacy import: owner %q is not in %s", legacy.Owner, LegacyUsersFile)
	}

	domains := make(map[string]*device.Domain)
	var order []string
	err = s.readLegacyLines(filepath.Join(legacy.Dir, LegacyDevicesFile), func(lineNumber int, fields []string) error {
		member := device.Identity{User: legacy.Owner, Device: fields[0]}
		domainName := fields[1]
		if member.Validate() != nil || device.ValidateDomainName(domainName) != nil {
			s.logger.Warn("skipping legacy device line", "file", LegacyDevicesFile, "line", lineNumber)
			report.Skipped++
			return nil
		}
		domain, ok := domains[domainName]
		if !ok {
			domain = &device.Domain{
				Name:        domainName,
				Owner:       legacy.Owner,
				Permissions: map[string]device.Role{legacy.Owner: device.RoleOwner},
				CreatedAt:   legacy.Now,
			}
			domains[domainName] = domain
			order = append(order, domainName)
		}
		for _, existing := range domain.Members {
			if existing == member {
				s.logger.Warn("skipping duplicate legacy device line", "file", LegacyDevicesFile, "line", lineNumber)
				report.Skipped++
				return nil
			}
		}
		domain.Members = append(domain.Members, member)
		report.Members++
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("store: legacy import: %w", err)
	}

	for _, name := range order {
		if err := s.PutDomain(ctx, *domains[name]); err != nil {
			return report, err
		}
		report.Domains++
	}

	s.logger.Info("legacy import complete",
		"dir", legacy.Dir,
		"owner", legacy.Owner,
		"users", report.Users,
		"domains", report.Domains,
		"members", report.Members,
		"skipped", report.Skipped,
	)
	return report, nil
}

// readLegacyLines calls fn for every non-blank line of path split on
// the first comma. A line without a comma yields an empty second field.
// A missing file yields no lines.
func (s *Store) readLegacyLines(path string, fn func(lineNumber int, fields []string) error) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("legacy file not present", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		first, second, _ := strings.Cut(line, ",")
		if err := fn(lineNumber, []string{strings.TrimSpace(first), strings.TrimSpace(second)}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
