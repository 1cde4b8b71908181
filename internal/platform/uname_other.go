//go:build !unix

package platform

import "runtime"

type system struct {
	name    string
	release string
	machine string
}

func uname() system {
	return system{name: runtime.GOOS, machine: runtime.GOARCH}
}
