//go:build unix

package wrapper

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestRunSurvivesClosedStdout(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	defer w.Close()

	cmd := wrappedCommand(t, "lines", helperLinesEnv+"=2000", helperExitEnv+"=3")
	cmd.Stdout = w
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Run()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected the child's nonzero exit, got %v", err)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		t.Fatalf("wrapper was killed by %s", status.Signal())
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("exit code = %d, want child's 3", exitErr.ExitCode())
	}
	if !bytes.Contains(stderr.Bytes(), []byte("err 1999")) {
		t.Error("stderr relay should be unaffected by the closed stdout")
	}
}

// readyWriter closes ready on its first write.
type readyWriter struct {
	once  sync.Once
	ready chan struct{}
}

func (w *readyWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.ready) })
	return len(p), nil
}

func TestRunForwardsSignals(t *testing.T) {
	stdout := &readyWriter{ready: make(chan struct{})}
	w := New(Options{
		Compiler:       helperCompiler(t),
		Env:            helperEnv("ready"),
		ForwardSignals: true,
		Stdout:         stdout,
		Stderr:         &bytes.Buffer{},
	})
	req, err := NewRequest(nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan *Outcome, 1)
	go func() { done <- w.Run(context.Background(), req) }()

	select {
	case <-stdout.ready:
	case <-time.After(10 * time.Second):
		t.Fatal("child never became ready")
	}
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	var o *Outcome
	select {
	case o = <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("SIGTERM was not forwarded to the child")
	}

	if o.Err != nil {
		t.Fatalf("Err = %v, want nil", o.Err)
	}
	if o.Reason != ExitReasonSignal {
		t.Errorf("Reason = %s, want signal", o.Reason)
	}
	if o.Code() != 128+int(syscall.SIGTERM) {
		t.Errorf("Code() = %d, want %d", o.Code(), 128+int(syscall.SIGTERM))
	}
}

func TestClassifyAfterDeadline(t *testing.T) {
	exe := helperCompiler(t)
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	w := New(Options{Compiler: exe, Timeout: time.Second})

	t.Run("ExitedOnItsOwn", func(t *testing.T) {
		cmd := exec.Command(exe)
		cmd.Env = helperEnv("exit", helperExitEnv+"=2")
		waitErr := cmd.Run()

		o := &Outcome{}
		w.classify(expired, o, waitErr)

		if o.Err != nil {
			t.Fatalf("Err = %v, want the child's own exit", o.Err)
		}
		if o.Code() != 2 {
			t.Errorf("Code() = %d, want 2", o.Code())
		}
	})

	t.Run("Killed", func(t *testing.T) {
		cmd := exec.Command(exe)
		cmd.Env = helperEnv("sleep")
		if err := cmd.Start(); err != nil {
			t.Fatal(err)
		}
		cmd.Process.Kill()
		waitErr := cmd.Wait()

		o := &Outcome{}
		w.classify(expired, o, waitErr)

		if o.Err == nil || o.Err.Kind != KindTimeout {
			t.Fatalf("Err = %v, want timeout", o.Err)
		}
		if o.Code() != ExitWrapperFailure {
			t.Errorf("Code() = %d, want %d", o.Code(), ExitWrapperFailure)
		}
	})
}
