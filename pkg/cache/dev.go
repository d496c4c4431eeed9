// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"log/slog"

	"github.com/paraflow-hq/quack/pkg/spec"
)

// Dev is the `dev` backend (spec.md §4.5): extends Cloud with a shorter
// 3-day expiry under `.quack-cache-dev/<app_name>`, and checks a secondary
// Cloud backend pointed at the CI tier's prefix before falling back to its
// own tier — so a developer's local build reuses a CI job's cache entry
// without ever writing into the CI tier itself.
type Dev struct {
	*Cloud
	CITier *Cloud
}

// NewDev wires own (the `.quack-cache-dev/<app_name>` tier) and ciTier (the
// `.quack-cache/<app_name>` tier another CI job already populated).
func NewDev(own *Cloud, ciTier *Cloud, logger *slog.Logger) *Dev {
	own.ExpireAfter = DevExpireDays
	if logger != nil {
		own.Logger = logger
	}
	return &Dev{Cloud: own, CITier: ciTier}
}

func (d *Dev) Exists(ctx context.Context, target *spec.Target) (bool, error) {
	ciHas, err := d.CITier.Exists(ctx, target)
	if err != nil {
		return false, err
	}
	if ciHas {
		return true, nil
	}
	return d.Cloud.Exists(ctx, target)
}

func (d *Dev) Load(ctx context.Context, target *spec.Target) error {
	ciHas, err := d.CITier.Exists(ctx, target)
	if err != nil {
		return err
	}
	if ciHas {
		// Loaded from the CI tier without refreshing its access time: Dev
		// reads from CI's cache but must not make CI entries look
		// freshly-touched by a developer's local build (spec.md §4.5).
		return d.CITier.load(ctx, target, false)
	}
	return d.Cloud.Load(ctx, target)
}
