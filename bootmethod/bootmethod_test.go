package bootmethod

import (
	"context"
	"testing"

	"github.com/jacobweinstock/tftpboot/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		method string
		want   Params
	}{
		{"pxe mac", "pxelinux.cfg/01-AA-bb-cc-dd-ee-ff", "pxe", Params{"mac": "aa:bb:cc:dd:ee:ff"}},
		{"pxe leading slash", "/pxelinux.cfg/01-aa-bb-cc-dd-ee-ff", "pxe", Params{"mac": "aa:bb:cc:dd:ee:ff"}},
		{"pxe default", "pxelinux.cfg/default", "pxe", Params{}},
		{"pxe default arch dash", "pxelinux.cfg/default-arm", "pxe", Params{"arch": "arm"}},
		{"pxe default arch dot subarch", "pxelinux.cfg/default.amd64-generic", "pxe", Params{"arch": "amd64", "subarch": "generic"}},
		{"uefi mac", "grub/grub.cfg-aa:bb:cc:dd:ee:ff", "uefi", Params{"mac": "aa:bb:cc:dd:ee:ff"}},
		{"uefi default", "grub/grub.cfg-default-amd64", "uefi", Params{"arch": "amd64"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Default().Lookup(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.method, m.Name())
			assert.Equal(t, tt.want, m.ExtractParams(tt.path))
		})
	}
}

func TestLookupNoMatch(t *testing.T) {
	for _, p := range []string{
		"pxelinux.0",
		"pxelinux.cfg/01-aa-bb",
		"pxelinux.cfg/defaultx",
		"bootx64.efi",
		"grub/grub.cfg",
		"amd64/generic/trusty/release/boot-kernel",
	} {
		_, ok := Default().Lookup(p)
		assert.False(t, ok, p)
	}
}

func TestNormalizeArch(t *testing.T) {
	p := Params{"arch": "arm"}
	NormalizeArch(p)
	assert.Equal(t, "armhf", p["arch"])

	p = Params{"arch": "amd64"}
	NormalizeArch(p)
	assert.Equal(t, "amd64", p["arch"])

	p = Params{}
	NormalizeArch(p)
	_, ok := p["arch"]
	assert.False(t, ok)
}

func TestRenderPXE(t *testing.T) {
	kp := data.BootParameters{
		Arch:       "amd64",
		Subarch:    "generic",
		Release:    "trusty",
		Label:      "release",
		Purpose:    "install",
		Hostname:   "node1",
		PreseedURL: "http://controller/preseed",
	}
	out, err := NewPXE().Render(context.Background(), RenderContext{Kernel: kp})
	require.NoError(t, err)
	want := `DEFAULT execute

LABEL execute
  KERNEL amd64/generic/trusty/release/boot-kernel
  INITRD amd64/generic/trusty/release/boot-initrd
  APPEND hostname=node1 auto url=http://controller/preseed
  IPAPPEND 2
`
	assert.Equal(t, want, string(out))
}

func TestRenderLocal(t *testing.T) {
	kp := data.BootParameters{Purpose: data.PurposeLocal}
	out, err := NewPXE().Render(context.Background(), RenderContext{Kernel: kp})
	require.NoError(t, err)
	assert.Contains(t, string(out), "LOCALBOOT 0")

	out, err = NewUEFI().Render(context.Background(), RenderContext{Kernel: kp})
	require.NoError(t, err)
	assert.Contains(t, string(out), "exit")
	assert.NotContains(t, string(out), "linux ")
}

func TestRenderUEFI(t *testing.T) {
	kp := data.BootParameters{Label: "daily", Kernel: "k", Initrd: "i", Cmdline: "console=ttyS0"}
	out, err := NewUEFI().Render(context.Background(), RenderContext{Kernel: kp})
	require.NoError(t, err)
	assert.Contains(t, string(out), "linux /k console=ttyS0\n")
	assert.Contains(t, string(out), "initrd /i\n")
	assert.Contains(t, string(out), "Booting daily...")
}
