//go:build linux
// +build linux

// Package unix re-exports the small subset of golang.org/x/sys/unix that
// linuxbridge's netlink MTU query and the integration tests'
// network-namespace helper use. Other files in those packages
// (linuxbridge's socket and filter code, testutils' kernel-version check)
// import golang.org/x/sys/unix directly.
package unix

import (
	linux "golang.org/x/sys/unix"
)

const (
	AF_UNSPEC      = linux.AF_UNSPEC
	RTM_GETLINK    = linux.RTM_GETLINK
	IFLA_MTU       = linux.IFLA_MTU
	CLONE_NEWNET   = linux.CLONE_NEWNET
	O_RDONLY       = linux.O_RDONLY
	O_CLOEXEC      = linux.O_CLOEXEC
)

var Gettid = linux.Gettid
var Unshare = linux.Unshare
