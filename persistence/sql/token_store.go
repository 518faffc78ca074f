// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"

	"github.com/xcherryio/xtask/persistence"
)

func (p sqlStoreImpl) LockToken(ctx context.Context, request persistence.LockTokenRequest) (bool, error) {
	return p.session.LockToken(ctx, request.Name, request.Holder, request.NowMs, request.StaleBeforeMs)
}

func (p sqlStoreImpl) UnlockToken(ctx context.Context, name, holder string, nowMs int64) (bool, error) {
	return p.session.UnlockToken(ctx, name, holder, nowMs)
}

func (p sqlStoreImpl) TouchToken(ctx context.Context, name, holder string, nowMs int64) (bool, error) {
	return p.session.TouchToken(ctx, name, holder, nowMs)
}

func (p sqlStoreImpl) GetToken(ctx context.Context, name string) (*persistence.Token, error) {
	row, err := p.session.SelectToken(ctx, name)
	if err != nil {
		return nil, p.notFound(err)
	}
	return &persistence.Token{
		Name:        row.Name,
		Locked:      row.Locked,
		LockedAtMs:  row.LockedAtMs,
		LockedBy:    row.LockedBy,
		UpdatedAtMs: row.UpdatedAtMs,
	}, nil
}

func (p sqlStoreImpl) DeleteInactiveTokens(ctx context.Context, updatedBeforeMs int64) (int64, error) {
	return p.session.DeleteInactiveTokens(ctx, updatedBeforeMs)
}
