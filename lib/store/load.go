// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/devicehub/lib/blobstore"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/secret"
)

// Snapshot is the full persisted state, as returned by Load.
type Snapshot struct {
	Users     []device.User
	Domains   []device.Domain
	Telemetry map[device.Identity]device.Sample
	Images    map[device.Identity]device.Image
}

// Load reads every table in one read transaction and assembles a
// Snapshot. Rows that cannot be interpreted are logged and skipped.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	snapshot := Snapshot{
		Telemetry: make(map[device.Identity]device.Sample),
		Images:    make(map[device.Identity]device.Image),
	}
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		if snapshot.Users, err = s.loadUsers(conn); err != nil {
			return fmt.Errorf("users: %w", err)
		}
		if snapshot.Domains, err = s.loadDomains(conn); err != nil {
			return fmt.Errorf("domains: %w", err)
		}
		if err := s.loadTelemetry(conn, snapshot.Telemetry); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		if err := s.loadImages(conn, snapshot.Images); err != nil {
			return fmt.Errorf("images: %w", err)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: load %w", err)
	}

	s.logger.Info("store loaded",
		"users", len(snapshot.Users),
		"domains", len(snapshot.Domains),
		"telemetry", len(snapshot.Telemetry),
		"images", len(snapshot.Images),
	)
	return snapshot, nil
}

func (s *Store) loadUsers(conn *sqlite.Conn) ([]device.User, error) {
	var users []device.User
	err := sqlitex.Execute(conn, "SELECT id, secret_hash, created_at FROM users ORDER BY rowid", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			user := device.User{
				ID:         stmt.ColumnText(0),
				SecretHash: stmt.ColumnText(1),
				CreatedAt:  fromUnixNano(stmt.ColumnInt64(2)),
			}
			if err := device.ValidateUserID(user.ID); err != nil {
				s.logger.Warn("skipping malformed user row", "id", user.ID, "error", err)
				return nil
			}
			if err := secret.ValidateHash(user.SecretHash); err != nil {
				s.logger.Warn("skipping user row with unusable secret hash", "id", user.ID, "error", err)
				return nil
			}
			users = append(users, user)
			return nil
		},
	})
	return users, err
}

func (s *Store) loadDomains(conn *sqlite.Conn) ([]device.Domain, error) {
	var domains []device.Domain
	index := make(map[string]int)

	err := sqlitex.Execute(conn, "SELECT name, owner, created_at FROM domains ORDER BY rowid", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			name := stmt.ColumnText(0)
			owner := stmt.ColumnText(1)
			if err := device.ValidateDomainName(name); err != nil {
				s.logger.Warn("skipping malformed domain row", "domain", name, "error", err)
				return nil
			}
			if err := device.ValidateUserID(owner); err != nil {
				s.logger.Warn("skipping domain row with malformed owner", "domain", name, "owner", owner, "error", err)
				return nil
			}
			index[name] = len(domains)
			domains = append(domains, device.Domain{
				Name:        name,
				Owner:       owner,
				Permissions: make(map[string]device.Role),
				CreatedAt:   fromUnixNano(stmt.ColumnInt64(2)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	err = sqlitex.Execute(conn, "SELECT domain, user_id, role FROM domain_permissions ORDER BY rowid", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			domainName := stmt.ColumnText(0)
			userID := stmt.ColumnText(1)
			position, ok := index[domainName]
			if !ok {
				s.logger.Warn("skipping permission row for unknown domain", "domain", domainName, "user", userID)
				return nil
			}
			role, err := device.ParseRole(stmt.ColumnText(2))
			if err != nil {
				s.logger.Warn("skipping permission row", "domain", domainName, "user", userID, "error", err)
				return nil
			}
			if err := device.ValidateUserID(userID); err != nil {
				s.logger.Warn("skipping permission row", "domain", domainName, "user", userID, "error", err)
				return nil
			}
			domains[position].Permissions[userID] = role
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	err = sqlitex.Execute(conn, "SELECT domain, user_id, device_id FROM domain_members ORDER BY rowid", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			domainName := stmt.ColumnText(0)
			member := device.Identity{User: stmt.ColumnText(1), Device: stmt.ColumnText(2)}
			position, ok := index[domainName]
			if !ok {
				s.logger.Warn("skipping member row for unknown domain", "domain", domainName, "device", member.String())
				return nil
			}
			if err := member.Validate(); err != nil {
				s.logger.Warn("skipping member row", "domain", domainName, "device", member.String(), "error", err)
				return nil
			}
			domains[position].Members = append(domains[position].Members, member)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	for i := range domains {
		domain := &domains[i]
		if domain.Permissions[domain.Owner] != device.RoleOwner {
			s.logger.Warn("restoring missing owner permission", "domain", domain.Name, "owner", domain.Owner)
			domain.Permissions[domain.Owner] = device.RoleOwner
		}
	}
	return domains, nil
}

func (s *Store) loadTelemetry(conn *sqlite.Conn, into map[device.Identity]device.Sample) error {
	return sqlitex.Execute(conn, "SELECT user_id, device_id, value, recorded_at FROM telemetry", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id := device.Identity{User: stmt.ColumnText(0), Device: stmt.ColumnText(1)}
			if err := id.Validate(); err != nil {
				s.logger.Warn("skipping telemetry row", "device", id.String(), "error", err)
				return nil
			}
			into[id] = device.Sample{
				Value:      float32(stmt.ColumnFloat(2)),
				RecordedAt: fromUnixNano(stmt.ColumnInt64(3)),
			}
			return nil
		},
	})
}

func (s *Store) loadImages(conn *sqlite.Conn, into map[device.Identity]device.Image) error {
	return sqlitex.Execute(conn, "SELECT user_id, device_id, blob_ref, size, recorded_at FROM images", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id := device.Identity{User: stmt.ColumnText(0), Device: stmt.ColumnText(1)}
			if err := id.Validate(); err != nil {
				s.logger.Warn("skipping image row", "device", id.String(), "error", err)
				return nil
			}
			ref := stmt.ColumnText(2)
			if _, err := blobstore.ParseRef(ref); err != nil {
				s.logger.Warn("skipping image row with bad blob ref", "device", id.String(), "ref", ref, "error", err)
				return nil
			}
			size := stmt.ColumnInt64(3)
			if size < 0 {
				s.logger.Warn("skipping image row with negative size", "device", id.String(), "size", size)
				return nil
			}
			into[id] = device.Image{
				Ref:        ref,
				Size:       size,
				RecordedAt: fromUnixNano(stmt.ColumnInt64(4)),
			}
			return nil
		},
	})
}

func fromUnixNano(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}
