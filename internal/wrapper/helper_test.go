package wrapper

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"
)

// The test binary doubles as a stand-in compiler. When CCWRAP_TEST_HELPER is
// set it behaves as the child process and never reaches flag parsing, so the
// policy flags in os.Args are not mistaken for test flags.
const (
	helperModeEnv  = "CCWRAP_TEST_HELPER"
	helperExitEnv  = "CCWRAP_TEST_EXIT"
	helperLinesEnv = "CCWRAP_TEST_LINES"
	helperKeysEnv  = "CCWRAP_TEST_KEYS"
	// helperWrapEnv makes the test binary act as the wrapper itself, with
	// the real process streams, running the helper mode it names.
	helperWrapEnv = "CCWRAP_TEST_WRAP"
)

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperWrapEnv); mode != "" {
		os.Exit(runWrapped(mode))
	}
	if mode := os.Getenv(helperModeEnv); mode != "" {
		os.Exit(runHelper(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func runHelper(mode string, args []string) int {
	code, _ := strconv.Atoi(os.Getenv(helperExitEnv))

	switch mode {
	case "echo":
		for _, a := range args {
			fmt.Fprintln(os.Stdout, a)
		}
	case "lines":
		n, err := strconv.Atoi(os.Getenv(helperLinesEnv))
		if err != nil {
			n = 100
		}
		for i := 0; i < n; i++ {
			fmt.Fprintf(os.Stdout, "out %d\n", i)
			fmt.Fprintf(os.Stderr, "err %d\n", i)
		}
	case "env":
		wd, _ := os.Getwd()
		fmt.Fprintf(os.Stdout, "PWD=%s\n", wd)
		for _, k := range strings.Split(os.Getenv(helperKeysEnv), ",") {
			if k != "" {
				fmt.Fprintf(os.Stdout, "%s=%s\n", k, os.Getenv(k))
			}
		}
	case "partial":
		fmt.Fprint(os.Stdout, "no trailing newline")
	case "stdin":
		n, _ := io.Copy(io.Discard, os.Stdin)
		fmt.Fprintf(os.Stdout, "stdin bytes: %d\n", n)
	case "ready":
		fmt.Fprintln(os.Stdout, "ready")
		time.Sleep(30 * time.Second)
	case "sleep":
		time.Sleep(30 * time.Second)
	case "exit":
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 100
	}
	return code
}

// runWrapped runs a Wrapper on os.Stdin, os.Stdout and os.Stderr with the
// test binary as the compiler in the given helper mode.
func runWrapped(mode string) int {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 100
	}

	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, helperWrapEnv+"=") {
			env = append(env, kv)
		}
	}
	env = append(env, helperModeEnv+"="+mode)

	req, err := NewRequest(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 100
	}
	return New(Options{Compiler: exe, Env: env}).Run(context.Background(), req).Code()
}

// wrappedCommand returns a command that re-executes the test binary as the wrapper.
func wrappedCommand(t *testing.T, mode string, extra ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(helperCompiler(t))
	cmd.Env = append(append(os.Environ(), helperWrapEnv+"="+mode), extra...)
	return cmd
}

// helperCompiler returns the path of the running test binary.
func helperCompiler(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return exe
}

// helperEnv returns the inherited environment plus the helper controls.
func helperEnv(mode string, extra ...string) []string {
	env := append([]string(nil), os.Environ()...)
	env = append(env, helperModeEnv+"="+mode)
	return append(env, extra...)
}
