//go:build darwin

package serial

import "golang.org/x/sys/unix"

// Platform-specific ioctl constants for macOS
const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETA
	ioctlTCFlush    = unix.TIOCFLUSH
)

// drainOutput blocks until all queued output has been transmitted.
func drainOutput(fd int) error {
	return unix.IoctlSetInt(fd, unix.TIOCDRAIN, 0)
}

// inputPending returns the number of unread bytes in the kernel
// receive buffer.
func inputPending(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.FIONREAD)
}
