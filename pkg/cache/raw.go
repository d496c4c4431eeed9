// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"

	"github.com/paraflow-hq/quack/pkg/spec"
)

// Raw is the `false` backend: caching disabled entirely (spec.md §4.5).
type Raw struct{}

func NewRaw() *Raw { return &Raw{} }

func (r *Raw) Exists(context.Context, *spec.Target) (bool, error) { return false, nil }
func (r *Raw) Load(context.Context, *spec.Target) error           { return nil }
func (r *Raw) Save(context.Context, *spec.Target) error           { return nil }
func (r *Raw) ClearExpired(context.Context) error                 { return nil }
