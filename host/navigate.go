package host

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

func (h *Host) NavigateToClass(project, fullName string) error {
	if h.locator == nil {
		return ErrUnknownSource
	}
	loc, ok := h.locator.LocateClass(fullName)
	if !ok {
		return fmt.Errorf("%w: class %s", ErrUnknownSource, fullName)
	}
	return h.openSource(project, fullName, loc)
}

func (h *Host) NavigateToMethod(project, classFullName, methodName string) error {
	if h.locator == nil {
		return ErrUnknownSource
	}
	loc, ok := h.locator.LocateMethod(classFullName, methodName)
	if !ok {
		return fmt.Errorf("%w: method %s of %s", ErrUnknownSource, methodName, classFullName)
	}
	return h.openSource(project, classFullName+"."+methodName, loc)
}

// SourcePath resolves a location relative to the solution directory.
func (h *Host) SourcePath(loc *types.SourceLocation) string {
	if filepath.IsAbs(loc.File) {
		return loc.File
	}
	return filepath.Join(h.dir, filepath.FromSlash(loc.File))
}

// OpenArgs returns the open command with placeholders substituted.
func (h *Host) OpenArgs(loc *types.SourceLocation) []string {
	file := h.SourcePath(loc)
	line := strconv.Itoa(loc.Line)
	args := make([]string, len(h.openCmd))
	for i, a := range h.openCmd {
		a = strings.ReplaceAll(a, "{file}", file)
		args[i] = strings.ReplaceAll(a, "{line}", line)
	}
	return args
}

func (h *Host) openSource(project, name string, loc *types.SourceLocation) error {
	file := h.SourcePath(loc)
	h.log.Info("Navigate", "project", project, "item", name, "location", fmt.Sprintf("%s:%d", file, loc.Line))
	if len(h.openCmd) == 0 {
		return nil
	}
	args := h.OpenArgs(loc)
	cmd := exec.CommandContext(h.ctx, args[0], args[1:]...)
	cmd.Dir = h.dir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting editor: %w", err)
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := cmd.Wait(); err != nil {
			h.log.Warn("Editor command failed", "err", err)
		}
	}()
	return nil
}
