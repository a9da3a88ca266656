//go:build linux

package serial

import "golang.org/x/sys/unix"

// Platform-specific ioctl constants for Linux
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
	ioctlTCFlush    = unix.TCFLSH
)

// drainOutput blocks until all queued output has been transmitted.
// On Linux tcdrain() is ioctl(fd, TCSBRK, 1).
func drainOutput(fd int) error {
	return unix.IoctlSetInt(fd, unix.TCSBRK, 1)
}

// inputPending returns the number of unread bytes in the kernel
// receive buffer.
func inputPending(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCINQ)
}
