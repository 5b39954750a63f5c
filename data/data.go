package data

import (
	"fmt"
	"path"
	"strings"
)

// BootParameters are the authoritative kernel parameters for one machine, as returned by the controller.
type BootParameters struct {
	Arch       string `json:"arch"`        // logical architecture, e.g. amd64, armhf.
	Subarch    string `json:"subarch"`     // e.g. generic, highbank.
	Release    string `json:"release"`     // OS release, e.g. trusty.
	Label      string `json:"label"`       // image stream label, e.g. release, daily.
	Purpose    string `json:"purpose"`     // install, xinstall, commissioning or local.
	Hostname   string `json:"hostname"`    // machine hostname.
	Domain     string `json:"domain"`      // machine domain.
	PreseedURL string `json:"preseed_url"` // where the installer fetches its preseed.
	LogHost    string `json:"log_host"`    // remote syslog target.
	FSHost     string `json:"fs_host"`     // host serving the root filesystem (iSCSI).
	ExtraOpts  string `json:"extra_opts"`  // verbatim extra kernel options.
	Kernel     string `json:"kernel"`      // optional explicit kernel path, relative to the TFTP root.
	Initrd     string `json:"initrd"`      // optional explicit initrd path, relative to the TFTP root.
	Cmdline    string `json:"cmdline"`     // optional explicit kernel command line.
}

// PurposeLocal means the machine should boot from its local disk.
const PurposeLocal = "local"

// ImagePath is the directory holding the boot images for these parameters.
func (b BootParameters) ImagePath() string {
	return path.Join(b.Arch, b.Subarch, b.Release, b.Label)
}

// KernelPath returns the explicit kernel path or the conventional one under ImagePath.
func (b BootParameters) KernelPath() string {
	if b.Kernel != "" {
		return b.Kernel
	}
	return path.Join(b.ImagePath(), "boot-kernel")
}

// InitrdPath returns the explicit initrd path or the conventional one under ImagePath.
func (b BootParameters) InitrdPath() string {
	if b.Initrd != "" {
		return b.Initrd
	}
	return path.Join(b.ImagePath(), "boot-initrd")
}

// KernelCommandLine returns the explicit command line or one composed from the individual fields.
func (b BootParameters) KernelCommandLine() string {
	if b.Cmdline != "" {
		return b.Cmdline
	}
	var opts []string
	if b.Hostname != "" {
		opts = append(opts, "hostname="+b.Hostname)
	}
	if b.Domain != "" {
		opts = append(opts, "domain="+b.Domain)
	}
	if b.PreseedURL != "" {
		opts = append(opts, "auto", "url="+b.PreseedURL)
	}
	if b.LogHost != "" {
		opts = append(opts, fmt.Sprintf("log_host=%s", b.LogHost), "log_port=514")
	}
	if b.FSHost != "" {
		opts = append(opts, "iscsi_target_ip="+b.FSHost)
	}
	if b.ExtraOpts != "" {
		opts = append(opts, b.ExtraOpts)
	}
	return strings.Join(opts, " ")
}
