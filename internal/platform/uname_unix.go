//go:build unix

package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

type system struct {
	name    string
	release string
	machine string
}

func uname() system {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return system{name: runtime.GOOS, machine: runtime.GOARCH}
	}
	return system{
		name:    unix.ByteSliceToString(u.Sysname[:]),
		release: unix.ByteSliceToString(u.Release[:]),
		machine: unix.ByteSliceToString(u.Machine[:]),
	}
}
