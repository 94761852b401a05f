package wrapper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

type runFixture struct {
	w      *Wrapper
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	spawns int
}

func newFixture(t *testing.T, opts Options) *runFixture {
	t.Helper()
	f := &runFixture{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	if opts.PolicyFlags == nil {
		opts.PolicyFlags = []string{"-masm=att", "-v"}
	}
	opts.Stdout = f.stdout
	opts.Stderr = f.stderr
	f.w = New(opts)
	f.w.command = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		f.spawns++
		return exec.CommandContext(ctx, name, args...)
	}
	return f
}

func (f *runFixture) run(t *testing.T, args ...string) *Outcome {
	t.Helper()
	req, err := NewRequest(args)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return f.w.Run(context.Background(), req)
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRunToolNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "clang-cl.exe")
	f := newFixture(t, Options{Compiler: missing, Banners: true})

	o := f.run(t, "-c", "foo.c")

	if f.spawns != 0 {
		t.Errorf("spawns = %d, want 0", f.spawns)
	}
	if o.Code() != ExitToolNotFound {
		t.Errorf("Code() = %d, want %d", o.Code(), ExitToolNotFound)
	}
	if o.Err == nil || o.Err.Kind != KindToolNotFound {
		t.Errorf("Err = %v, want tool_not_found", o.Err)
	}
	if o.Reason != ExitReasonToolNotFound {
		t.Errorf("Reason = %s, want %s", o.Reason, ExitReasonToolNotFound)
	}
	if f.stdout.Len() != 0 || f.stderr.Len() != 0 {
		t.Errorf("expected no output, got stdout=%q stderr=%q", f.stdout, f.stderr)
	}
}

func TestRunEchoesAugmentedArgs(t *testing.T) {
	f := newFixture(t, Options{Compiler: helperCompiler(t), Env: helperEnv("echo")})

	o := f.run(t, "-c", "foo.c")

	if o.Err != nil {
		t.Fatalf("unexpected wrapper error: %v (stderr=%q)", o.Err, f.stderr)
	}
	want := []string{"-masm=att", "-v", "-c", "foo.c"}
	got := lines(f.stdout.String())
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("child received %q, want %q", got, want)
	}
	if o.Code() != 0 {
		t.Errorf("Code() = %d, want 0", o.Code())
	}
	if f.spawns != 1 {
		t.Errorf("spawns = %d, want 1", f.spawns)
	}
	if o.PID == 0 {
		t.Error("PID should be recorded")
	}
}

func TestRunPassesArgumentsVerbatim(t *testing.T) {
	f := newFixture(t, Options{Compiler: helperCompiler(t), Env: helperEnv("echo")})

	args := []string{"-DNAME=\"quoted value\"", "path with spaces.c", `C:\dir\file.cpp`, "-I$HOME", "*.c"}
	o := f.run(t, args...)

	if o.Code() != 0 {
		t.Fatalf("Code() = %d, stderr=%q", o.Code(), f.stderr)
	}
	got := lines(f.stdout.String())
	if len(got) != len(args)+2 {
		t.Fatalf("got %d args, want %d: %q", len(got), len(args)+2, got)
	}
	for i, a := range args {
		if got[i+2] != a {
			t.Errorf("arg %d = %q, want %q", i, got[i+2], a)
		}
	}
}

func TestRunPropagatesExitCode(t *testing.T) {
	for _, code := range []int{0, 1, 2, 3, 77} {
		t.Run(fmt.Sprintf("exit_%d", code), func(t *testing.T) {
			f := newFixture(t, Options{
				Compiler: helperCompiler(t),
				Env:      helperEnv("exit", fmt.Sprintf("%s=%d", helperExitEnv, code)),
			})

			o := f.run(t, "-c", "foo.c")

			if o.Err != nil {
				t.Fatalf("child nonzero exit must not be a wrapper error: %v", o.Err)
			}
			if o.Code() != code {
				t.Errorf("Code() = %d, want %d", o.Code(), code)
			}
			wantReason := ExitReasonError
			if code == 0 {
				wantReason = ExitReasonSuccess
			}
			if o.Reason != wantReason {
				t.Errorf("Reason = %s, want %s", o.Reason, wantReason)
			}
		})
	}
}

func TestRunPreservesPerStreamOrder(t *testing.T) {
	const n = 2000
	f := newFixture(t, Options{
		Compiler: helperCompiler(t),
		Env:      helperEnv("lines", fmt.Sprintf("%s=%d", helperLinesEnv, n)),
	})

	o := f.run(t)

	if o.Code() != 0 {
		t.Fatalf("Code() = %d, stderr=%q", o.Code(), f.stderr)
	}

	outLines := lines(f.stdout.String())
	errLines := lines(f.stderr.String())
	if len(outLines) != n || len(errLines) != n {
		t.Fatalf("got %d stdout and %d stderr lines, want %d each", len(outLines), len(errLines), n)
	}
	for i := 0; i < n; i++ {
		if outLines[i] != fmt.Sprintf("out %d", i) {
			t.Fatalf("stdout line %d = %q", i, outLines[i])
		}
		if errLines[i] != fmt.Sprintf("err %d", i) {
			t.Fatalf("stderr line %d = %q", i, errLines[i])
		}
	}
	if o.Stdout.Lines != n || o.Stderr.Lines != n {
		t.Errorf("relay stats lines = %d/%d, want %d", o.Stdout.Lines, o.Stderr.Lines, n)
	}
}

func TestRunUsesRequestDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, Options{
		Compiler: helperCompiler(t),
		Env:      helperEnv("env", helperKeysEnv+"=CCWRAP_INJECTED", "CCWRAP_INJECTED=hardened"),
	})

	req := Request{Args: []string{"-c", "foo.c"}, Dir: dir}
	o := f.w.Run(context.Background(), req)
	if o.Code() != 0 {
		t.Fatalf("Code() = %d, stderr=%q", o.Code(), f.stderr)
	}

	out := f.stdout.String()
	wantDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	var gotDir string
	for _, l := range lines(out) {
		if v, ok := strings.CutPrefix(l, "PWD="); ok {
			gotDir, _ = filepath.EvalSymlinks(v)
		}
	}
	if gotDir != wantDir {
		t.Errorf("child cwd = %q, want %q", gotDir, wantDir)
	}
	if !strings.Contains(out, "CCWRAP_INJECTED=hardened\n") {
		t.Errorf("injected env var missing from child output: %q", out)
	}
}

func TestRunBanners(t *testing.T) {
	compiler := helperCompiler(t)
	f := newFixture(t, Options{
		Compiler: compiler,
		Banners:  true,
		Env:      helperEnv("exit", helperExitEnv+"=2"),
	})

	o := f.run(t, "-c", "foo.c")

	if o.Code() != 2 {
		t.Fatalf("Code() = %d, want 2", o.Code())
	}
	name := filepath.Base(compiler)
	stdout := f.stdout.String()
	if !strings.HasPrefix(stdout, "ccwrap received arguments:\n") {
		t.Errorf("missing start banner: %q", stdout)
	}
	if !strings.Contains(stdout, `"-masm=att" "-v" "-c" "foo.c"`) {
		t.Errorf("start banner should quote augmented args: %q", stdout)
	}
	if !strings.HasSuffix(stdout, "--- "+name+" Output End ---\n") {
		t.Errorf("end banner should be the last stdout line: %q", stdout)
	}
	if !strings.Contains(f.stderr.String(), "exited with code: 2") {
		t.Errorf("nonzero exit line should go to stderr: %q", f.stderr)
	}
}

func TestRunBannersFollowRelayedOutput(t *testing.T) {
	f := newFixture(t, Options{
		Compiler: helperCompiler(t),
		Banners:  true,
		Env:      helperEnv("lines", helperLinesEnv+"=50"),
	})

	o := f.run(t)
	if o.Code() != 0 {
		t.Fatalf("Code() = %d", o.Code())
	}

	got := lines(f.stdout.String())
	// start banner (2 lines) + 50 relayed + end banner + exit line
	if len(got) != 54 {
		t.Fatalf("got %d stdout lines, want 54: %q", len(got), got)
	}
	if got[52] != fmt.Sprintf("--- %s Output End ---", filepath.Base(helperCompiler(t))) {
		t.Errorf("end banner at wrong position: %q", got[52])
	}
	if !strings.HasSuffix(got[53], "exited with code: 0") {
		t.Errorf("last line = %q", got[53])
	}
}

func TestRunSpawnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec permission bits are not enforced on windows")
	}
	notExecutable := filepath.Join(t.TempDir(), "clang")
	if err := os.WriteFile(notExecutable, []byte("not a program"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, Options{Compiler: notExecutable})

	o := f.run(t, "-c", "foo.c")

	if o.Err == nil || o.Err.Kind != KindSpawnFailure {
		t.Fatalf("Err = %v, want spawn_failure", o.Err)
	}
	if o.Code() != ExitWrapperFailure {
		t.Errorf("Code() = %d, want %d", o.Code(), ExitWrapperFailure)
	}
	if !strings.Contains(f.stderr.String(), "execution failed") {
		t.Errorf("failure detail missing from stderr: %q", f.stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	f := newFixture(t, Options{
		Compiler: helperCompiler(t),
		Timeout:  200 * time.Millisecond,
		Env:      helperEnv("sleep"),
	})

	start := time.Now()
	o := f.run(t)

	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout did not stop the child, took %s", elapsed)
	}
	if o.Err == nil || o.Err.Kind != KindTimeout {
		t.Fatalf("Err = %v, want timeout", o.Err)
	}
	if o.Reason != ExitReasonTimeout {
		t.Errorf("Reason = %s, want timeout", o.Reason)
	}
	if o.Code() != ExitWrapperFailure {
		t.Errorf("Code() = %d, want %d", o.Code(), ExitWrapperFailure)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestRunRelayWriteFailureIsBestEffort(t *testing.T) {
	w := New(Options{
		Compiler:    helperCompiler(t),
		PolicyFlags: []string{"-masm=att", "-v"},
		Env:         helperEnv("lines", helperLinesEnv+"=20", helperExitEnv+"=3"),
		Stdout:      failingWriter{},
		Stderr:      &bytes.Buffer{},
	})

	req, err := NewRequest(nil)
	if err != nil {
		t.Fatal(err)
	}
	o := w.Run(context.Background(), req)

	if o.Err != nil {
		t.Fatalf("relay failure must not become the outcome: %v", o.Err)
	}
	if o.Code() != 3 {
		t.Errorf("Code() = %d, want child's 3", o.Code())
	}
	if len(o.RelayErrors) == 0 {
		t.Error("expected relay error to be recorded")
	}
	if KindOf(o.RelayErrors[0]) != KindRelayFailure {
		t.Errorf("relay error kind = %s", KindOf(o.RelayErrors[0]))
	}
	if o.Stdout.Dropped == 0 || o.Stdout.Lines != 20 {
		t.Errorf("stdout stats = %+v, want 20 lines all dropped", o.Stdout)
	}
}

func TestRunLifecycleEvents(t *testing.T) {
	f := newFixture(t, Options{Compiler: helperCompiler(t), Env: helperEnv("exit")})

	o := f.run(t)

	var states []State
	for _, e := range o.Events {
		states = append(states, e.State)
	}
	want := []State{StateNotStarted, StatePreflight, StateSpawning, StateRunning, StateTerminated, StateReporting, StateDone}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if o.Duration() <= 0 {
		t.Error("Duration should be positive")
	}
}

func TestRunInheritsStdin(t *testing.T) {
	cmd := wrappedCommand(t, "stdin")
	cmd.Stdin = strings.NewReader("int main(void){return 0;}\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("wrapper failed: %v\n%s", err, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != "stdin bytes: 26" {
		t.Errorf("compiler saw %q, want the caller's 26 bytes of stdin", got)
	}
}
