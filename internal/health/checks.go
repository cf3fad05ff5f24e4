package health

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrUnreachable is reported by [RemoteReachable] when the backend answered
// its probe negatively.
var ErrUnreachable = errors.New("remote did not answer its health probe")

// ConnectionTester is implemented by transcription backends.
type ConnectionTester interface {
	TestConnection(ctx context.Context) (bool, error)
}

// DirWritable returns a [Checker] that creates and removes a probe file in
// dir.
func DirWritable(name, dir string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			f, err := os.CreateTemp(dir, ".health-*")
			if err != nil {
				return fmt.Errorf("directory %q not writable: %w", dir, err)
			}
			path := f.Name()
			if err := f.Close(); err != nil {
				_ = os.Remove(path)
				return err
			}
			return os.Remove(path)
		},
	}
}

// RemoteReachable returns a [Checker] that runs the backend's connection
// test.
func RemoteReachable(name string, t ConnectionTester) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			ok, err := t.TestConnection(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUnreachable
			}
			return nil
		},
	}
}
