// Package serial provides serial port access for the uartlink host.
// It opens a raw 8N1 termios port with poll-based timeout reads, and
// can alternatively connect to a Unix socket exposed by a link
// simulator. The Driver in this package adapts a Port to the
// event-driven contract the uart pipeline consumes.
package serial

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Common errors
var (
	ErrTimeout = errors.New("serial: operation timed out")
	ErrClosed  = errors.New("serial: port closed")
)

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., /dev/ttyUSB0, /dev/ttyACM0)
	Device string

	// Baud rate (default: 115200)
	BaudRate int

	// Read timeout for individual operations (default: 5 seconds)
	ReadTimeout time.Duration

	// RTS/DTR control on connect
	RTSOnConnect bool
	DTROnConnect bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BaudRate:     115200,
		ReadTimeout:  5 * time.Second,
		RTSOnConnect: true,
		DTROnConnect: true,
	}
}

// Port represents a serial link connection: a termios device or a
// Unix socket speaking the same byte stream.
type Port struct {
	mu         sync.Mutex
	fd         int
	device     string
	config     Config
	closed     bool
	oldTermios *unix.Termios
	isSocket   bool // true if connected via Unix socket (simulator)
}

// ListPorts returns a list of available serial port device paths.
func ListPorts() ([]string, error) {
	var patterns []string
	switch runtime.GOOS {
	case "linux":
		patterns = []string{
			"/dev/ttyUSB*",
			"/dev/ttyACM*",
			"/dev/ttyS*",
			"/dev/serial/by-id/*",
		}
	case "darwin":
		patterns = []string{
			"/dev/tty.usbserial*",
			"/dev/tty.usbmodem*",
			"/dev/cu.usbserial*",
			"/dev/cu.usbmodem*",
		}
	default:
		return nil, fmt.Errorf("serial: unsupported platform %s", runtime.GOOS)
	}

	var ports []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			// Resolve symlinks (especially for /dev/serial/by-id/)
			resolved, err := filepath.EvalSymlinks(m)
			if err != nil {
				resolved = m
			}
			if !seen[resolved] {
				seen[resolved] = true
				ports = append(ports, resolved)
			}
		}
	}

	sort.Strings(ports)
	return ports, nil
}

// Open opens a serial port with the given configuration.
func Open(cfg Config) (*Port, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: device path required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Second
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}

	oldTermios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: get termios: %w", err)
	}

	termios := *oldTermios

	// Input flags - disable all input processing
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY

	// Output flags - disable all output processing
	termios.Oflag &^= unix.OPOST

	// Control flags - 8N1
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// Local flags - raw mode
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	speed, err := baudRateToSpeed(cfg.BaudRate)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	setSpeed(&termios, speed)

	// Non-blocking reads; timeouts are applied via poll
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: set termios: %w", err)
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: set blocking: %w", err)
	}

	port := &Port{
		fd:         fd,
		device:     cfg.Device,
		config:     cfg,
		oldTermios: oldTermios,
	}

	if err := port.setModemControl(cfg.RTSOnConnect, cfg.DTROnConnect); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: set modem control: %w", err)
	}

	return port, nil
}

// OpenSocket connects to a Unix socket at the given path. This is used
// to connect to a link simulator that exposes its pty as a socket.
func OpenSocket(socketPath string, timeout time.Duration) (*Port, error) {
	if socketPath == "" {
		return nil, errors.New("serial: socket path required")
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: create socket: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: socketPath}

	deadline := time.Now().Add(timeout)
	var connectErr error
	for time.Now().Before(deadline) {
		connectErr = unix.Connect(fd, addr)
		if connectErr == nil {
			break
		}
		// Socket might not exist yet, wait and retry
		if errors.Is(connectErr, unix.ENOENT) || errors.Is(connectErr, unix.ECONNREFUSED) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		unix.Close(fd)
		return nil, fmt.Errorf("serial: connect to %s: %w", socketPath, connectErr)
	}
	if connectErr != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: connect timeout to %s: %w", socketPath, connectErr)
	}

	return &Port{
		fd:       fd,
		device:   socketPath,
		config:   Config{ReadTimeout: 5 * time.Second},
		isSocket: true,
	}, nil
}

// IsSocket returns true if this port is connected via Unix socket.
func (p *Port) IsSocket() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isSocket
}

// Read reads up to len(buf) bytes from the port, waiting at most the
// configured read timeout for data to become available.
func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	fd := p.fd
	timeout := p.config.ReadTimeout
	p.mu.Unlock()

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil // Interrupted, try again
		}
		return 0, fmt.Errorf("serial: poll: %w", err)
	}
	if n == 0 {
		return 0, ErrTimeout
	}

	if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return 0, io.EOF
	}

	n, err = unix.Read(fd, buf)
	if err != nil {
		return 0, fmt.Errorf("serial: read: %w", err)
	}
	return n, nil
}

// Write writes buf to the port.
func (p *Port) Write(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	fd := p.fd
	p.mu.Unlock()

	n, err := unix.Write(fd, buf)
	if err != nil {
		return 0, fmt.Errorf("serial: write: %w", err)
	}
	return n, nil
}

// Drain waits for all queued output to reach the wire, up to timeout.
// For socket connections there is no hardware transmit path, so Drain
// is a no-op.
func (p *Port) Drain(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	fd := p.fd
	isSocket := p.isSocket
	p.mu.Unlock()

	if isSocket {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- drainOutput(fd)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrTimeout
	}
}

// FlushInput discards any unread data in the receive path. On sockets
// it drains whatever is immediately readable.
func (p *Port) FlushInput() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	fd := p.fd
	isSocket := p.isSocket
	p.mu.Unlock()

	if isSocket {
		buf := make([]byte, 4096)
		for {
			pending, err := inputPending(fd)
			if err != nil || pending == 0 {
				return err
			}
			if _, err := unix.Read(fd, buf); err != nil {
				return err
			}
		}
	}

	return unix.IoctlSetInt(fd, ioctlTCFlush, unix.TCIFLUSH)
}

// InputPending returns the number of received bytes not yet read.
func (p *Port) InputPending() (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	fd := p.fd
	p.mu.Unlock()

	return inputPending(fd)
}

// Close closes the serial port or socket.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	// Restore original settings (serial ports only)
	if p.oldTermios != nil && !p.isSocket {
		_ = unix.IoctlSetTermios(p.fd, ioctlSetTermios, p.oldTermios)
	}

	return unix.Close(p.fd)
}

// Device returns the device path.
func (p *Port) Device() string {
	return p.device
}

// SetReadTimeout sets the read timeout.
func (p *Port) SetReadTimeout(d time.Duration) {
	p.mu.Lock()
	p.config.ReadTimeout = d
	p.mu.Unlock()
}

// pollFd returns the descriptor for event polling and whether the
// port is still open.
func (p *Port) pollFd() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fd, !p.closed
}

// setModemControl sets RTS and DTR signals. Some USB serial adapters
// do not support modem control, so errors are not fatal.
func (p *Port) setModemControl(rts, dtr bool) error {
	var status int32

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(p.fd), uintptr(unix.TIOCMGET), uintptr(unsafe.Pointer(&status)))
	if errno != 0 {
		return nil
	}

	if rts {
		status |= unix.TIOCM_RTS
	} else {
		status &^= unix.TIOCM_RTS
	}
	if dtr {
		status |= unix.TIOCM_DTR
	} else {
		status &^= unix.TIOCM_DTR
	}

	_, _, errno = unix.Syscall(unix.SYS_IOCTL, uintptr(p.fd), uintptr(unix.TIOCMSET), uintptr(unsafe.Pointer(&status)))
	if errno != 0 {
		return nil
	}
	return nil
}

// baudRateToSpeed converts a baud rate to a termios speed constant.
func baudRateToSpeed(baud int) (uint32, error) {
	speeds := map[int]uint32{
		1200:   unix.B1200,
		2400:   unix.B2400,
		4800:   unix.B4800,
		9600:   unix.B9600,
		19200:  unix.B19200,
		38400:  unix.B38400,
		57600:  unix.B57600,
		115200: unix.B115200,
		230400: unix.B230400,
	}

	if runtime.GOOS == "linux" {
		speeds[460800] = 0x1004 // B460800
		speeds[500000] = 0x1005 // B500000
		speeds[921600] = 0x1007 // B921600
	}

	if speed, ok := speeds[baud]; ok {
		return speed, nil
	}
	return 0, fmt.Errorf("serial: unsupported baud rate %d", baud)
}
