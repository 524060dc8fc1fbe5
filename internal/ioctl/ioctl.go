// Package ioctl builds the device-control command code and message layout
// used to exchange bytes with the NSM device.
//
// Command numbers follow the C sources from the Linux kernel:
// * https://github.com/torvalds/linux/blob/master/include/asm-generic/ioctl.h
// * https://github.com/torvalds/linux/blob/master/include/uapi/asm-generic/ioctl.h
package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	nrBits   uint = 8
	typeBits uint = 8
	sizeBits uint = 14

	nrShift   uint = 0
	typeShift uint = nrShift + nrBits
	sizeShift uint = typeShift + typeBits
	dirShift  uint = sizeShift + sizeBits

	// None - No ioctl direction.
	None uint = 0

	// Write - Write ioctl direction.
	Write uint = 1

	// Read - Read ioctl direction.
	Read uint = 2

	// Magic is the ioctl type reserved by the NSM driver.
	Magic uint = 0x0A
)

// Command assembles an ioctl command code from the supplied arguments.
func Command(dir, typ, nr, size uint) uint {
	return (dir << dirShift) |
		(typ << typeShift) |
		(nr << nrShift) |
		(size << sizeShift)
}

// Message is the exchange passed to the NSM device in a single ioctl: the
// encoded request bytes and the capacity the device may write a response
// into. The device rewrites the response iovec length to the number of bytes
// it wrote.
type Message struct {
	Request  unix.Iovec
	Response unix.Iovec
}

// NSMCommand returns the read-write command code that carries one Message.
func NSMCommand() uint {
	return Command(Read|Write, Magic, 0, uint(unsafe.Sizeof(Message{})))
}
