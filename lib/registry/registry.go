// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/devicehub/lib/clock"
	"github.com/bureau-foundation/devicehub/lib/metrics"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/secret"
	"github.com/bureau-foundation/devicehub/lib/store"
)

var (
	// ErrDomainExists: CreateDomain named a domain that already exists.
	ErrDomainExists = errors.New("domain already exists")

	// ErrNoSuchDomain: the named domain does not exist.
	ErrNoSuchDomain = errors.New("no such domain")

	// ErrNotAuthorized: the actor lacks the permission the operation
	// requires.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNoSuchUser: AddReader named a user that has never
	// authenticated.
	ErrNoSuchUser = errors.New("no such user")

	// ErrAlreadyMember: the target already holds a permission on the
	// domain (AddReader) or the device is already a member (JoinDomain).
	ErrAlreadyMember = errors.New("already a member")

	// ErrAlreadyOnline: another connection is bound to the identity.
	ErrAlreadyOnline = errors.New("device already online")

	// ErrNoData: the requested telemetry or image has never been
	// recorded.
	ErrNoData = errors.New("no data")

	// ErrIO: blob storage failed. The in-memory state is unchanged.
	ErrIO = errors.New("blob storage failure")

	// ErrInvalidArgument: an identity, domain name or value failed
	// validation.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store is the persistence the registry mirrors its mutations to.
// *store.Store implements it.
type Store interface {
	AppendUser(ctx context.Context, user device.User) error
	PutDomain(ctx context.Context, domain device.Domain) error
	UpsertTelemetry(ctx context.Context, id device.Identity, sample device.Sample) error
	UpsertImage(ctx context.Context, id device.Identity, image device.Image) error
	PutBlob(ctx context.Context, data []byte) (string, error)
	ReadBlob(ctx context.Context, ref string) ([]byte, error)
	DeleteBlob(ctx context.Context, ref string) error
}

// Config holds the registry's collaborators.
type Config struct {
	// Store receives every mutation. Required.
	Store Store

	// Hasher hashes and verifies user secrets. Required.
	Hasher *secret.Hasher

	// Clock stamps users, domains and telemetry. Defaults to the real
	// clock.
	Clock clock.Clock

	// ImagePolicy decides who may read a device's image. Defaults to
	// PolicySharedDomain.
	ImagePolicy ImagePolicy

	// DefaultDomain is the only domain PolicyDefaultDomain considers.
	DefaultDomain string

	// Metrics receives online-set and store-failure counts. May be nil.
	Metrics *metrics.Metrics

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Registry is the shared device, domain and permission state. Safe for
// concurrent use.
type Registry struct {
	store         Store
	hasher        *secret.Hasher
	clock         clock.Clock
	imagePolicy   ImagePolicy
	defaultDomain string
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu        sync.Mutex
	users     map[string]device.User
	domains   map[string]*domainState
	telemetry map[device.Identity]device.Sample
	images    map[device.Identity]device.Image
	online    map[device.Identity]struct{}

	// storedImageRefs is the blob ref each device's persisted image
	// row names. It lags images after a failed UpsertImage, and blobs
	// named here are never deleted.
	storedImageRefs map[device.Identity]string
}

// domainState is a domain plus a membership index for O(1) lookups.
// Members keeps join order; the persisted form is the embedded Domain.
type domainState struct {
	device.Domain
	memberSet map[device.Identity]struct{}
}

func (d *domainState) hasMember(id device.Identity) bool {
	_, ok := d.memberSet[id]
	return ok
}

// New builds a registry from a loaded snapshot. The online set starts
// empty.
func New(cfg Config, snapshot store.Snapshot) (*Registry, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("registry: Store is required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("registry: Hasher is required")
	}
	policy := cfg.ImagePolicy
	if policy == "" {
		policy = PolicySharedDomain
	}
	if _, err := ParseImagePolicy(string(policy)); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if policy == PolicyDefaultDomain && cfg.DefaultDomain == "" {
		return nil, fmt.Errorf("registry: image policy %q requires DefaultDomain", policy)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Registry{
		store:         cfg.Store,
		hasher:        cfg.Hasher,
		clock:         clk,
		imagePolicy:   policy,
		defaultDomain: cfg.DefaultDomain,
		metrics:       cfg.Metrics,
		logger:        logger,
		users:         make(map[string]device.User, len(snapshot.Users)),
		domains:       make(map[string]*domainState, len(snapshot.Domains)),
		telemetry:     make(map[device.Identity]device.Sample, len(snapshot.Telemetry)),
		images:        make(map[device.Identity]device.Image, len(snapshot.Images)),
		online:        make(map[device.Identity]struct{}),

		storedImageRefs: make(map[device.Identity]string, len(snapshot.Images)),
	}

	for _, user := range snapshot.Users {
		r.users[user.ID] = user
	}
	for _, domain := range snapshot.Domains {
		state := &domainState{
			Domain:    domain,
			memberSet: make(map[device.Identity]struct{}, len(domain.Members)),
		}
		state.Permissions = make(map[string]device.Role, len(domain.Permissions))
		for user, role := range domain.Permissions {
			state.Permissions[user] = role
		}
		state.Members = nil
		for _, member := range domain.Members {
			if state.hasMember(member) {
				continue
			}
			state.memberSet[member] = struct{}{}
			state.Members = append(state.Members, member)
		}
		r.domains[domain.Name] = state
	}
	for id, sample := range snapshot.Telemetry {
		r.telemetry[id] = sample
	}
	for id, image := range snapshot.Images {
		r.images[id] = image
		r.storedImageRefs[id] = image.Ref
	}

	r.metrics.SetDevicesOnline(0)
	return r, nil
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Users   int
	Domains int
	Online  int
	Samples int
	Images  int
}

// Stats returns current counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Users:   len(r.users),
		Domains: len(r.domains),
		Online:  len(r.online),
		Samples: len(r.telemetry),
		Images:  len(r.images),
	}
}

// persistFailed records a store write that did not land. Called with
// r.mu held; the in-memory change it mirrors has already been applied.
func (r *Registry) persistFailed(operation string, err error, attrs ...any) {
	r.metrics.StoreWriteFailed()
	r.logger.Error("store write failed, durability risk",
		append([]any{"operation", operation, "error", err}, attrs...)...)
}

// snapshotDomain copies a domain for the store so the store never
// aliases registry maps.
func snapshotDomain(state *domainState) device.Domain {
	domain := state.Domain
	domain.Permissions = make(map[string]device.Role, len(state.Permissions))
	for user, role := range state.Permissions {
		domain.Permissions[user] = role
	}
	domain.Members = append([]device.Identity(nil), state.Members...)
	return domain
}
