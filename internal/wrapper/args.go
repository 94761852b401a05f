package wrapper

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// errIsDirectory is reported when the compiler path names a directory.
var errIsDirectory = errors.New("is a directory")

// Preflight checks that path names an existing regular file.
func Preflight(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &Error{Kind: KindToolNotFound, Op: "stat", Path: path, Err: err}
	}
	if info.IsDir() {
		return &Error{Kind: KindToolNotFound, Op: "stat", Path: path, Err: errIsDirectory}
	}
	return nil
}

// AugmentArgs returns policy followed by args, in order, as a new slice.
// Neither input is modified and no string is rewritten.
func AugmentArgs(policy, args []string) []string {
	out := make([]string, 0, len(policy)+len(args))
	out = append(out, policy...)
	return append(out, args...)
}

// QuoteArgs renders args for human-readable banners and logs only.
func QuoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return strings.Join(quoted, " ")
}
