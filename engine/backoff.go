// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"math"
	"time"

	"github.com/xcherryio/xtask/config"
)

// NextTryDelay is the delay before the attempt following the try-th failure:
// tryDelay * coefficient^(try-1), capped at maxTryDelay
func NextTryDelay(cfg config.TaskConfig, try int32) time.Duration {
	if try < 1 {
		try = 1
	}
	coefficient := cfg.TryBackoffCoefficient
	if coefficient < 1 {
		coefficient = 1
	}
	next := float64(cfg.TryDelay) * math.Pow(coefficient, float64(try-1))
	if cfg.MaxTryDelay > 0 && next > float64(cfg.MaxTryDelay) {
		return cfg.MaxTryDelay
	}
	return time.Duration(next)
}

// maxTryOf is the number of attempts of a task, the task value wins over the config
func maxTryOf(cfg config.TaskConfig, maxTry int32) int32 {
	if maxTry > 0 {
		return maxTry
	}
	return cfg.TryCount
}
