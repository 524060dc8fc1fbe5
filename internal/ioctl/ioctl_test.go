package ioctl

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCommand(t *testing.T) {
	// _IOWR(0x0A, 0, 48)
	require.Equal(t, uint(0xC0300A00), Command(Read|Write, Magic, 0, 48))

	// _IOR('T', 0x11, 4)
	require.Equal(t, uint(0x80045411), Command(Read, 'T', 0x11, 4))
}

func TestNSMCommand(t *testing.T) {
	size := uint(unsafe.Sizeof(Message{}))

	require.Equal(t, Command(Read|Write, Magic, 0, size), NSMCommand())
}
