// Package nsm is a client for the Nitro Security Module device. It marshals
// typed requests into their canonical binary form, exchanges them with the
// device through a single bounded device-control call, and unmarshals typed
// responses. The device's register and signing logic lives on the other side
// of that call; this package only speaks the wire schema.
package nsm

//go:generate go run ./internal/genheader -out nsm.h

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/veilware/nsm/internal/ioctl"
	"github.com/veilware/nsm/request"
	"github.com/veilware/nsm/response"
)

const (
	// DevicePath is the well-known NSM device file.
	DevicePath = "/dev/nsm"

	maxRequestSize  = 0x1000
	maxResponseSize = 0x3000
)

// FileDescriptor is a generic file descriptor interface that can be closed.
// os.File conforms to this interface.
type FileDescriptor interface {
	// Fd provides the uintptr for the file descriptor.
	Fd() uintptr

	// Close the file descriptor.
	Close() error
}

// A SyscallFunc performs one raw device-control call against the descriptor
// returned from Open as the a1 argument. It implements the syscall.Syscall
// interface.
type SyscallFunc func(trap, a1, a2, a3 uintptr) (r1, r2 uintptr, err syscall.Errno)

// Options for the opening of an NSM session.
type Options struct {
	// Path overrides the device file opened by the default Open function.
	Path string

	// Open acquires the device descriptor. Defaults to opening Path for
	// simultaneous read and write.
	Open func() (FileDescriptor, error)

	// Syscall issues the device-control call. Defaults to unix.Syscall.
	Syscall SyscallFunc

	// Logger receives transport-level events. Raw operating-system error
	// details are logged here and never surface in a Response. Defaults to
	// a no-op logger.
	Logger *zap.Logger
}

var (
	// ErrSessionClosed is returned when the session is in a closed state.
	ErrSessionClosed = errors.New("session is closed")
)

// A Session owns one open handle to the NSM device. It is created once, used
// for many exchanges and released once. The device's register bank is shared
// by every open session; this layer performs no cross-session coordination.
type Session struct {
	fd      FileDescriptor
	syscall SyscallFunc
	logger  *zap.Logger
	respool *sync.Pool
}

// OpenSession opens a new session with the provided options. It never
// panics; the caller branches on the returned error.
func OpenSession(opts Options) (*Session, error) {
	path := opts.Path
	if path == "" {
		path = DevicePath
	}

	open := opts.Open
	if open == nil {
		open = func() (FileDescriptor, error) {
			return os.OpenFile(path, os.O_RDWR, 0)
		}
	}

	sys := opts.Syscall
	if sys == nil {
		sys = unix.Syscall
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fd, err := open()
	if err != nil {
		logger.Error("opening NSM device failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	logger.Debug("NSM device opened", zap.String("path", path))

	return &Session{
		fd:      fd,
		syscall: sys,
		logger:  logger,
		respool: &sync.Pool{
			New: func() any {
				return make([]byte, maxResponseSize)
			},
		},
	}, nil
}

// OpenDefaultSession opens a new session on /dev/nsm.
func OpenDefaultSession() (*Session, error) {
	return OpenSession(Options{})
}

// Close this session. Closing an already-closed session reports
// ErrSessionClosed. It is not safe to Close while other goroutines are
// Read-ing or Send-ing.
func (sess *Session) Close() error {
	if sess.fd == nil {
		return ErrSessionClosed
	}

	err := sess.fd.Close()
	sess.fd = nil

	if err != nil {
		sess.logger.Error("closing NSM device failed", zap.Error(err))
		return err
	}

	sess.logger.Debug("NSM device closed")
	return nil
}

// Send an NSM request to the device and await its response. Send is total:
// every failure is reported inside the returned Response as an Error code,
// never as a Go error or a panic. It is safe to call from multiple
// goroutines that are Read-ing or Send-ing, but not Close-ing. Each call
// reserves at most 12KB of memory, so many parallel sends increase memory
// usage accordingly.
func (sess *Session) Send(req request.Request) response.Response {
	encoded, err := request.Marshal(req)
	if err != nil {
		sess.logger.Error("encoding request failed", zap.Error(err))
		return response.Response{Error: response.InternalError}
	}

	if len(encoded) > maxRequestSize {
		sess.logger.Error("request exceeds device limit",
			zap.Int("size", len(encoded)),
			zap.Int("limit", maxRequestSize))
		return response.Response{Error: response.InputTooLarge}
	}

	return sess.exchange(encoded)
}

// exchange performs exactly one blocking device-control call carrying the
// encoded request and the full response capacity, then decodes whatever the
// device wrote.
func (sess *Session) exchange(encoded []byte) response.Response {
	if sess.fd == nil {
		sess.logger.Error("exchange attempted on closed session")
		return response.Response{Error: response.InternalError}
	}

	buf := sess.respool.Get().([]byte)
	defer sess.respool.Put(buf)

	msg := ioctl.Message{}
	msg.Request.Base = &encoded[0]
	msg.Request.SetLen(len(encoded))
	msg.Response.Base = &buf[0]
	msg.Response.SetLen(len(buf))

	_, _, errno := sess.syscall(
		unix.SYS_IOCTL,
		sess.fd.Fd(),
		uintptr(ioctl.NSMCommand()),
		uintptr(unsafe.Pointer(&msg)),
	)

	if errno != 0 {
		sess.logger.Error("device ioctl failed",
			zap.Int("errno", int(errno)),
			zap.String("cause", errno.Error()))

		if errno == unix.EMSGSIZE {
			return response.Response{Error: response.InputTooLarge}
		}

		return response.Response{Error: response.InternalError}
	}

	written := uint64(msg.Response.Len)
	if written > uint64(len(buf)) {
		sess.logger.Error("device reported an oversized response", zap.Uint64("length", written))
		return response.Response{Error: response.InternalError}
	}

	return response.Decode(buf[:written])
}
