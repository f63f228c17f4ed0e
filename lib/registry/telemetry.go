// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"math"

	"github.com/bureau-foundation/devicehub/lib/schema/device"
)

// RecordTelemetry overwrites id's latest temperature sample.
func (r *Registry) RecordTelemetry(ctx context.Context, id device.Identity, value float32) error {
	if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return fmt.Errorf("%w: temperature %v is not finite", ErrInvalidArgument, value)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sample := device.Sample{Value: value, RecordedAt: r.clock.Now()}
	r.telemetry[id] = sample
	if err := r.store.UpsertTelemetry(ctx, id, sample); err != nil {
		r.persistFailed("record telemetry", err, "device", id.String())
	}
	return nil
}

// RecordImage stores blob as id's latest image. The blob write happens
// under the lock so a concurrent replacement cannot delete bytes that
// the new record references. A failed blob write returns ErrIO and
// leaves the previous image in place. A failed record write keeps the
// new image in memory and deletes no blob, since the stored row still
// names the old one.
func (r *Registry) RecordImage(ctx context.Context, id device.Identity, blob []byte) (device.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, err := r.store.PutBlob(ctx, blob)
	if err != nil {
		r.logger.Error("image blob write failed", "device", id.String(), "size", len(blob), "error", err)
		return device.Image{}, fmt.Errorf("%w: %v", ErrIO, err)
	}

	previous := r.images[id]
	image := device.Image{Ref: ref, Size: int64(len(blob)), RecordedAt: r.clock.Now()}
	r.images[id] = image

	if err := r.store.UpsertImage(ctx, id, image); err != nil {
		r.persistFailed("record image", err, "device", id.String())
		return image, nil
	}
	previousStored := r.storedImageRefs[id]
	r.storedImageRefs[id] = ref

	replaced := []string{previous.Ref}
	if previousStored != previous.Ref {
		replaced = append(replaced, previousStored)
	}
	for _, old := range replaced {
		if old == "" || old == ref || r.blobReferenced(old) {
			continue
		}
		if err := r.store.DeleteBlob(ctx, old); err != nil {
			r.logger.Warn("cannot delete replaced image blob", "device", id.String(), "ref", old, "error", err)
		}
	}
	return image, nil
}

// blobReferenced reports whether any image, in memory or in a stored
// row, names ref. Called with r.mu held.
func (r *Registry) blobReferenced(ref string) bool {
	for _, image := range r.images {
		if image.Ref == ref {
			return true
		}
	}
	for _, stored := range r.storedImageRefs {
		if stored == ref {
			return true
		}
	}
	return false
}

// ReadDomainTelemetry returns the latest sample of every member of
// domainName that has one, ordered by identity. Failures are checked in
// order: the domain exists, the actor holds a role, at least one member
// has a sample.
func (r *Registry) ReadDomainTelemetry(actorID, domainName string) ([]device.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.domains[domainName]
	if !ok {
		return nil, ErrNoSuchDomain
	}
	if _, held := state.Permissions[actorID]; !held {
		return nil, ErrNotAuthorized
	}

	var readings []device.Reading
	for _, member := range state.Members {
		if sample, ok := r.telemetry[member]; ok {
			readings = append(readings, device.Reading{Device: member, Value: sample.Value})
		}
	}
	if len(readings) == 0 {
		return nil, ErrNoData
	}
	device.SortReadings(readings)
	return readings, nil
}

// ReadDeviceImage returns owner's latest image record and its bytes if
// actorID may read it under the configured policy. The bytes are read
// under the lock so a concurrent RecordImage cannot delete them
// mid-read.
func (r *Registry) ReadDeviceImage(ctx context.Context, actorID string, owner device.Identity) (device.Image, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.canReadImage(actorID, owner) {
		return device.Image{}, nil, ErrNotAuthorized
	}
	image, ok := r.images[owner]
	if !ok {
		return device.Image{}, nil, ErrNoData
	}
	data, err := r.store.ReadBlob(ctx, image.Ref)
	if err != nil {
		r.logger.Error("image blob read failed", "device", owner.String(), "ref", image.Ref, "error", err)
		return device.Image{}, nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return image, data, nil
}
