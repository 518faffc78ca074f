// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
)

type processLauncherImpl struct {
	executable string
	configPath string
	logger     log.Logger

	sync.Mutex
	exited map[int]bool
}

// NewProcessLauncher runs `<executable> --config <configPath> worker --worker-id <id>`.
// An empty executable means the running binary.
func NewProcessLauncher(executable, configPath string, logger log.Logger) (Launcher, error) {
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve the worker executable: %w", err)
		}
		executable = self
	}
	return &processLauncherImpl{
		executable: executable,
		configPath: configPath,
		logger:     logger,
		exited:     map[int]bool{},
	}, nil
}

func (p *processLauncherImpl) Spawn(ctx context.Context, workerId string) (int, error) {
	args := []string{}
	if p.configPath != "" {
		args = append(args, "--config", p.configPath)
	}
	args = append(args, "worker", "--worker-id", workerId)

	// not bound to ctx, workers outlive a supervisor restart
	cmd := exec.Command(p.executable, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	go func() {
		err := cmd.Wait()
		p.Lock()
		p.exited[pid] = true
		p.Unlock()
		if err != nil {
			p.logger.Info("worker process exited", tag.WorkerId(workerId), tag.Pid(pid), tag.Error(err))
		}
	}()
	return pid, nil
}

func (p *processLauncherImpl) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p.Lock()
	exited := p.exited[pid]
	p.Unlock()
	if exited {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func (p *processLauncherImpl) Kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
