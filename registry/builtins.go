package registry

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-testexec/types"
)

// builtins are available in every registry unless disabled
var builtins = map[string]Factory{
	"pass":         passFunc,
	"fail":         failFunc,
	"error":        errorFunc,
	"panic":        panicFunc,
	"assert":       assertFunc,
	"sleep":        sleepFunc,
	"skip":         outcomeFunc(types.Skip),
	"ignore":       outcomeFunc(types.Ignore),
	"warn":         outcomeFunc(types.Warn),
	"inconclusive": outcomeFunc(types.Inconclusive),
	"exec":         execFunc,
}

func passFunc(Args) (types.Func, error) {
	return func(types.T) error { return nil }, nil
}

// failFunc records a failed assertion
func failFunc(args Args) (types.Func, error) {
	msg, err := args.String("message", "assertion failed")
	if err != nil {
		return nil, err
	}
	return func(t types.T) error {
		t.Assert(false, "%s", msg)
		return nil
	}, nil
}

// errorFunc returns an error from the body
func errorFunc(args Args) (types.Func, error) {
	msg, err := args.String("message", "error")
	if err != nil {
		return nil, err
	}
	return func(types.T) error {
		return errors.New(msg)
	}, nil
}

func panicFunc(args Args) (types.Func, error) {
	msg, err := args.String("message", "panic")
	if err != nil {
		return nil, err
	}
	return func(types.T) error {
		panic(msg)
	}, nil
}

// assertFunc makes count passing assertions
func assertFunc(args Args) (types.Func, error) {
	count, err := args.Int("count", 1)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative")
	}
	return func(t types.T) error {
		for i := 0; i < count; i++ {
			t.Assert(true, "assertion %d", i)
		}
		return nil
	}, nil
}

// sleepFunc waits for duration or until the body context ends
func sleepFunc(args Args) (types.Func, error) {
	d, err := args.Duration("duration", 0)
	if err != nil {
		return nil, err
	}
	return func(t types.T) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-t.Context().Done():
			return t.Context().Err()
		}
	}, nil
}

func outcomeFunc(fn func(format string, args ...any) error) Factory {
	return func(args Args) (types.Func, error) {
		msg, err := args.String("message", "")
		if err != nil {
			return nil, err
		}
		return func(types.T) error {
			return fn("%s", msg)
		}, nil
	}
}

// execFunc runs an external command; a non-zero exit fails the test
func execFunc(args Args) (types.Func, error) {
	command, err := args.String("command", "")
	if err != nil {
		return nil, err
	}
	if command == "" {
		return nil, errors.New("command is required")
	}
	cmdArgs, err := args.Strings("args")
	if err != nil {
		return nil, err
	}
	dir, err := args.String("dir", "")
	if err != nil {
		return nil, err
	}
	return func(t types.T) error {
		cmd := exec.CommandContext(t.Context(), command, cmdArgs...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		output := strings.TrimSpace(stripansi.Strip(string(out)))
		if err != nil {
			if output != "" {
				return fmt.Errorf("%s: %w\n%s", command, err, output)
			}
			return fmt.Errorf("%s: %w", command, err)
		}
		if output != "" {
			t.Log("Command output", "command", command, "output", output)
		}
		return nil
	}, nil
}
