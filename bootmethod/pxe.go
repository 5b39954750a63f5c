package bootmethod

import (
	"regexp"
	"text/template"
)

// pxelinux asks for pxelinux.cfg/01-<mac> (01 is the ARP hardware type for ethernet),
// then pxelinux.cfg/default.<arch>-<subarch> and finally pxelinux.cfg/default.
// Both '.' and '-' are seen as the separator after "default".
var reConfigFile = regexp.MustCompile(
	`^/?pxelinux\.cfg/` +
		`(?:01-(?P<mac>(?:[0-9a-fA-F]{2}-){5}[0-9a-fA-F]{2})` +
		`|default(?:[.-](?P<arch>\w+)(?:-(?P<subarch>\w+))?)?)$`)

var pxeTemplate = template.Must(template.New("pxe").Parse(`{{if .Local -}}
DEFAULT local

LABEL local
  LOCALBOOT 0
{{else -}}
DEFAULT execute

LABEL execute
  KERNEL {{.Kernel}}
  INITRD {{.Initrd}}
  APPEND {{.Cmdline}}
  IPAPPEND 2
{{end -}}
`))

// NewPXE returns the pxelinux boot method.
func NewPXE() Method {
	return &pattern{name: "pxe", re: reConfigFile, tmpl: pxeTemplate}
}
