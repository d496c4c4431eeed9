// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dependency

import "context"

// TargetDep is the `target`-kind dependency: its checksum is simply the
// checksum_value of the named upstream target, recursively computed and
// memoised by whoever owns the target graph (pkg/engine). A cycle here is
// reported as a spec error by that recursion (pkg/engine.Fingerprint).
type TargetDep struct {
	Name          string
	PropagateFlag bool
}

func (t *TargetDep) Kind() Kind          { return KindTarget }
func (t *TargetDep) Propagate() bool     { return t.PropagateFlag }
func (t *TargetDep) DisplayName() string { return "target:" + t.Name }

func (t *TargetDep) Checksum(ctx context.Context, scope *Scope) (string, error) {
	return scope.ResolveTarget(ctx, t.Name)
}
