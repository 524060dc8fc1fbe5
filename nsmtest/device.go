// Package nsmtest provides an in-process substitute for the NSM device so
// that code built on package nsm can run without /dev/nsm.
//
// The device decodes request bytes with the mirror request decoder, hands
// the typed request to a caller-supplied handler and re-encodes the
// handler's response with the peer-side encoder. It does not model the
// device's register state machine; handlers script whatever behavior a test
// needs.
package nsmtest

import (
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/veilware/nsm"
	"github.com/veilware/nsm/internal/ioctl"
	"github.com/veilware/nsm/request"
	"github.com/veilware/nsm/response"
)

// A Device stands in for the NSM device behind a session's Open and Syscall
// seams. The zero value rejects every request with InvalidOperation.
type Device struct {
	// Handler produces the response for each decoded request.
	Handler func(req request.Request) response.Response

	// Raw, when set, bypasses the codec mirrors and maps raw request bytes
	// directly to raw response bytes. It takes precedence over Handler.
	Raw func(req []byte) []byte

	// Errno, when nonzero, fails every device-control call with that errno
	// before any request is decoded.
	Errno syscall.Errno

	calls int64
}

// Calls reports how many device-control calls reached the device.
func (d *Device) Calls() int {
	return int(atomic.LoadInt64(&d.calls))
}

// Options returns session options wired to this device in place of
// /dev/nsm.
func (d *Device) Options() nsm.Options {
	return nsm.Options{
		Open: func() (nsm.FileDescriptor, error) {
			return &fakeFD{}, nil
		},
		Syscall: d.ioctl,
	}
}

func (d *Device) ioctl(trap, a1, a2, a3 uintptr) (uintptr, uintptr, syscall.Errno) {
	atomic.AddInt64(&d.calls, 1)

	if d.Errno != 0 {
		return 0, 0, d.Errno
	}

	msg := (*ioctl.Message)(unsafe.Pointer(a3))
	reqb := unsafe.Slice(msg.Request.Base, msg.Request.Len)

	resb, err := d.respond(reqb)
	if err != nil {
		return 0, 0, syscall.EIO
	}

	out := unsafe.Slice(msg.Response.Base, msg.Response.Len)
	if len(resb) > len(out) {
		return 0, 0, syscall.EMSGSIZE
	}

	msg.Response.SetLen(copy(out, resb))
	return 0, 0, 0
}

func (d *Device) respond(reqb []byte) ([]byte, error) {
	if d.Raw != nil {
		return d.Raw(reqb), nil
	}

	res := response.Response{Error: response.InvalidOperation}

	req, err := request.Unmarshal(reqb)
	if err != nil {
		res = response.Response{Error: response.InvalidArgument}
	} else if d.Handler != nil {
		res = d.Handler(req)
	}

	return response.Marshal(res)
}

type fakeFD struct {
	closed bool
}

func (f *fakeFD) Fd() uintptr {
	return uintptr(3)
}

func (f *fakeFD) Close() error {
	if f.closed {
		return syscall.EBADF
	}

	f.closed = true
	return nil
}
