//go:build !linux

package device

import "runtime"

func uname() (string, string) {
	return runtime.GOOS, ""
}
