package device

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pysugar/homeauth/internal/domain"
)

// Identity is the hardware/OS part of DeviceInfo.
type Identity struct {
	DeviceID   string
	Brand      string
	Model      string
	OSName     string
	OSVersion  string
	IsEmulator bool
}

// IdentitySource yields the local device identity.
type IdentitySource interface {
	Identity(ctx context.Context) (Identity, error)
}

// deviceNamespace scopes derived device ids so the raw machine id never
// leaves the host.
var deviceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/pysugar/homeauth/device"))

// hypervisorMarkers are DMI vendor/product substrings of virtual machines.
var hypervisorMarkers = []string{"qemu", "kvm", "vmware", "virtualbox", "innotek", "xen", "virtual machine", "bochs", "parallels"}

// HostIdentity reads identity from the local filesystem. Root is prepended
// to every path and is empty outside tests.
type HostIdentity struct {
	Root string
}

// Identity requires a machine id; every other field is best effort.
func (h HostIdentity) Identity(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
	}

	machineID := h.readFirst("/etc/machine-id", "/var/lib/dbus/machine-id")
	if machineID == "" {
		return Identity{}, fmt.Errorf("%w: no machine id", domain.ErrMetadataUnavailable)
	}

	id := Identity{
		DeviceID: uuid.NewSHA1(deviceNamespace, []byte(machineID)).String(),
		Brand:    h.readFirst("/sys/class/dmi/id/sys_vendor", "/sys/class/dmi/id/board_vendor"),
		Model:    h.readFirst("/sys/class/dmi/id/product_name", "/sys/class/dmi/id/board_name"),
	}

	release := h.osRelease()
	id.OSName = release["NAME"]
	id.OSVersion = release["VERSION_ID"]
	if id.OSName == "" || id.OSVersion == "" {
		sysname, kernel := uname()
		if id.OSName == "" {
			id.OSName = sysname
		}
		if id.OSVersion == "" {
			id.OSVersion = kernel
		}
	}

	id.IsEmulator = h.exists("/sys/hypervisor/type") || looksVirtual(id.Brand, id.Model)
	return id, nil
}

func looksVirtual(values ...string) bool {
	for _, v := range values {
		v = strings.ToLower(v)
		for _, marker := range hypervisorMarkers {
			if strings.Contains(v, marker) {
				return true
			}
		}
	}
	return false
}

func (h HostIdentity) path(p string) string {
	return filepath.Join(h.Root, p)
}

func (h HostIdentity) exists(p string) bool {
	_, err := os.Stat(h.path(p))
	return err == nil
}

// readFirst returns the first non-empty trimmed file content.
func (h HostIdentity) readFirst(paths ...string) string {
	for _, p := range paths {
		raw, err := os.ReadFile(h.path(p))
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(string(raw)); v != "" {
			return v
		}
	}
	return ""
}

// osRelease parses KEY=value lines of os-release(5).
func (h HostIdentity) osRelease() map[string]string {
	out := map[string]string{}
	for _, p := range []string{"/etc/os-release", "/usr/lib/os-release"} {
		f, err := os.Open(h.path(p))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			out[key] = strings.Trim(value, `"'`)
		}
		f.Close()
		return out
	}
	return out
}
