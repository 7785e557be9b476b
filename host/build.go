package host

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/ethereum-optimism/infra/op-explorer/metrics"
	"github.com/ethereum-optimism/infra/op-explorer/orchestrator"
)

// BuildSolution starts a build and returns immediately. BuildStarted and
// BuildFinished are delivered from the build goroutine; BuildFinished is sent
// whether or not the build succeeded.
func (h *Host) BuildSolution() error {
	if h.closed.Load() {
		return ErrClosed
	}
	if !h.building.CompareAndSwap(false, true) {
		return ErrBuildInProgress
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.emit(func(ev orchestrator.EditorEvents) { ev.BuildStarted() })

		start := time.Now()
		err := h.runBuild(h.ctx)
		if err != nil {
			h.log.Error("Build failed", "err", err, "duration", time.Since(start))
			metrics.RecordErrorDetails("build", err)
			h.WriteToLog(fmt.Sprintf("build failed: %v\n", err))
		} else {
			h.log.Info("Build succeeded", "duration", time.Since(start))
		}
		h.mu.Lock()
		h.buildErr = err
		h.mu.Unlock()
		h.building.Store(false)
		h.emit(func(ev orchestrator.EditorEvents) { ev.BuildFinished() })
	}()
	return nil
}

// IsBuilding reports whether a build is running.
func (h *Host) IsBuilding() bool {
	return h.building.Load()
}

// LastBuildError is the error of the most recent finished build, nil if it
// succeeded or no build ran yet.
func (h *Host) LastBuildError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buildErr
}

func (h *Host) runBuild(ctx context.Context) error {
	if len(h.buildCmd) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, h.buildCmd[0], h.buildCmd[1:]...)
	cmd.Dir = h.dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	h.log.Info("Building solution", "cmd", h.buildCmd, "dir", h.dir)
	err := cmd.Run()
	if out.Len() > 0 {
		h.log.Debug("Build output", "output", out.String())
	}
	if err != nil {
		return fmt.Errorf("%w: %s", err, bytes.TrimSpace(out.Bytes()))
	}
	return nil
}
