package bootmethod

import (
	"regexp"
	"text/template"
)

// grub EFI asks for grub/grub.cfg-<mac> and falls back to grub/grub.cfg-default-<arch>[-<subarch>].
var reGrubConfigFile = regexp.MustCompile(
	`^/?grub/grub\.cfg-` +
		`(?:(?P<mac>(?:[0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2})` +
		`|default-(?P<arch>\w+)(?:-(?P<subarch>\w+))?)$`)

var grubTemplate = template.Must(template.New("uefi").Parse(`set default="0"
set timeout=0
{{if .Local}}
menuentry 'Local' {
  exit
}
{{else}}
menuentry 'Boot' {
  echo 'Booting {{.Label}}...'
  linux /{{.Kernel}} {{.Cmdline}}
  initrd /{{.Initrd}}
}
{{end -}}
`))

// NewUEFI returns the grub EFI boot method.
func NewUEFI() Method {
	return &pattern{name: "uefi", re: reGrubConfigFile, tmpl: grubTemplate}
}
