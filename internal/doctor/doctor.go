// Package doctor checks that the configured toolchain and host can serve builds.
package doctor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/psantana5/ccwrap/internal/config"
	"github.com/psantana5/ccwrap/internal/wrapper"
)

// VersionTimeout bounds the compiler --version probe.
const VersionTimeout = 10 * time.Second

// Status of a single check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Check is the result of one probe.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Report is the ordered list of checks.
type Report struct {
	Checks []Check `json:"checks"`
}

// OK reports whether no check failed.
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Run executes every check against cfg.
func Run(ctx context.Context, cfg *config.Config) *Report {
	r := &Report{}

	compiler := checkCompiler(cfg.Compiler)
	r.Checks = append(r.Checks, compiler)
	if compiler.Status == StatusOK {
		r.Checks = append(r.Checks, checkVersion(ctx, cfg.Compiler))
	} else {
		r.Checks = append(r.Checks, Check{Name: "compiler version", Status: StatusSkip, Detail: "compiler not found"})
	}

	r.Checks = append(r.Checks, checkJournal(cfg.Journal))
	r.Checks = append(r.Checks, checkCPU(ctx), checkMemory(ctx))
	return r
}

func checkCompiler(path string) Check {
	c := Check{Name: "compiler"}
	if err := wrapper.Preflight(path); err != nil {
		c.Status = StatusFail
		c.Detail = err.Error()
		return c
	}
	c.Status = StatusOK
	c.Detail = path
	return c
}

// checkVersion runs "<compiler> --version" and reports the first output line.
func checkVersion(ctx context.Context, path string) Check {
	c := Check{Name: "compiler version"}

	ctx, cancel := context.WithTimeout(ctx, VersionTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	line := firstLine(out.Bytes())
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.Status = StatusWarn
		c.Detail = fmt.Sprintf("no answer within %s", VersionTimeout)
	case err != nil:
		c.Status = StatusWarn
		c.Detail = strings.TrimSpace(fmt.Sprintf("%v %s", err, line))
	case line == "":
		c.Status = StatusWarn
		c.Detail = "empty version output"
	default:
		c.Status = StatusOK
		c.Detail = line
	}
	return c
}

func firstLine(b []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}

// checkJournal makes sure the journal can be appended to. It creates the
// file when missing, exactly as the first invocation would.
func checkJournal(path string) Check {
	c := Check{Name: "journal"}
	if path == "" {
		c.Status = StatusSkip
		c.Detail = "journal disabled"
		return c
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.Status = StatusFail
		c.Detail = err.Error()
		return c
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.Status = StatusFail
		c.Detail = err.Error()
		return c
	}
	f.Close()

	c.Status = StatusOK
	c.Detail = path
	return c
}

func checkCPU(ctx context.Context) Check {
	c := Check{Name: "cpu"}

	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		c.Status = StatusWarn
		c.Detail = err.Error()
		return c
	}

	model := "unknown model"
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		model = infos[0].ModelName
	}

	c.Status = StatusOK
	c.Detail = fmt.Sprintf("%s, %d logical CPUs", model, logical)
	return c
}

func checkMemory(ctx context.Context) Check {
	c := Check{Name: "memory"}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.Status = StatusWarn
		c.Detail = err.Error()
		return c
	}

	const gb = 1024 * 1024 * 1024
	c.Status = StatusOK
	c.Detail = fmt.Sprintf("%.2f GB total, %.2f GB available", float64(vm.Total)/gb, float64(vm.Available)/gb)
	return c
}
