//go:build !unix

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

func isDaemonChild() bool { return false }

func daemonize() (int, error) {
	return 0, errors.New("daemon mode is not supported on this platform")
}

func writePIDFile(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}
