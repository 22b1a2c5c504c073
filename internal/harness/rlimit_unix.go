//go:build unix

package harness

import "golang.org/x/sys/unix"

// openFileLimit returns the soft RLIMIT_NOFILE of the process.
func openFileLimit() (uint64, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, err
	}
	return rl.Cur, nil
}
