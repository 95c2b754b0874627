//go:build linux

package device

import "golang.org/x/sys/unix"

// uname returns the kernel name and release.
func uname() (string, string) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", ""
	}
	return unix.ByteSliceToString(u.Sysname[:]), unix.ByteSliceToString(u.Release[:])
}
