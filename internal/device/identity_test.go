package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pysugar/homeauth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, path, body string) {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
}

func TestHostIdentity_ReadsHostFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "/etc/machine-id", "0123456789abcdef0123456789abcdef\n")
	writeFile(t, root, "/sys/class/dmi/id/sys_vendor", "LENOVO\n")
	writeFile(t, root, "/sys/class/dmi/id/product_name", "ThinkPad X1\n")
	writeFile(t, root, "/etc/os-release", "# comment\nNAME=\"Ubuntu\"\nVERSION_ID=\"24.04\"\n")

	id, err := HostIdentity{Root: root}.Identity(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, id.DeviceID)
	assert.NotContains(t, id.DeviceID, "0123456789abcdef")
	assert.Equal(t, "LENOVO", id.Brand)
	assert.Equal(t, "ThinkPad X1", id.Model)
	assert.Equal(t, "Ubuntu", id.OSName)
	assert.Equal(t, "24.04", id.OSVersion)
	assert.False(t, id.IsEmulator)

	again, err := HostIdentity{Root: root}.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id.DeviceID, again.DeviceID, "device id must be stable")
}

func TestHostIdentity_DetectsVirtualMachine(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "/etc/machine-id", "abc\n")
	writeFile(t, root, "/sys/class/dmi/id/sys_vendor", "QEMU\n")
	writeFile(t, root, "/sys/class/dmi/id/product_name", "Standard PC (Q35 + ICH9, 2009)\n")

	id, err := HostIdentity{Root: root}.Identity(context.Background())
	require.NoError(t, err)
	assert.True(t, id.IsEmulator)
}

func TestHostIdentity_NoMachineID(t *testing.T) {
	_, err := HostIdentity{Root: t.TempDir()}.Identity(context.Background())
	assert.True(t, errors.Is(err, domain.ErrMetadataUnavailable), "got %v", err)
}
