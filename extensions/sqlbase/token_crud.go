// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqlbase

import (
	"context"

	"github.com/xcherryio/xtask/extensions"
)

// a single conditional upsert, so that two holders can never both win
const lockTokenQuery = `INSERT INTO xtask_tokens (name, locked, locked_at_ms, locked_by, updated_at_ms)
	VALUES (?, true, ?, ?, ?)
	ON CONFLICT (name) DO UPDATE SET
		locked = true,
		locked_at_ms = excluded.locked_at_ms,
		locked_by = excluded.locked_by,
		updated_at_ms = excluded.updated_at_ms
	WHERE xtask_tokens.locked = false OR xtask_tokens.locked_at_ms < ?`

func (c crud) LockToken(ctx context.Context, name, holder string, nowMs, staleBeforeMs int64) (bool, error) {
	n, err := affected(c.exec(ctx, lockTokenQuery, name, nowMs, holder, nowMs, staleBeforeMs))
	return n == 1, err
}

func (c crud) UnlockToken(ctx context.Context, name, holder string, nowMs int64) (bool, error) {
	n, err := affected(c.exec(ctx,
		`UPDATE xtask_tokens SET locked = false, updated_at_ms = ? WHERE name = ? AND locked_by = ? AND locked = true`,
		nowMs, name, holder))
	return n == 1, err
}

func (c crud) TouchToken(ctx context.Context, name, holder string, nowMs int64) (bool, error) {
	n, err := affected(c.exec(ctx,
		`UPDATE xtask_tokens SET locked_at_ms = ?, updated_at_ms = ? WHERE name = ? AND locked_by = ? AND locked = true`,
		nowMs, nowMs, name, holder))
	return n == 1, err
}

func (c crud) SelectToken(ctx context.Context, name string) (*extensions.TokenRow, error) {
	var row extensions.TokenRow
	err := c.get(ctx, &row,
		`SELECT name, locked, locked_at_ms, locked_by, updated_at_ms FROM xtask_tokens WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (c crud) DeleteInactiveTokens(ctx context.Context, updatedBeforeMs int64) (int64, error) {
	return affected(c.exec(ctx, `DELETE FROM xtask_tokens WHERE updated_at_ms < ?`, updatedBeforeMs))
}
