// Package bootmethod recognises boot-loader configuration requests and renders them.
package bootmethod

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"regexp"
	"text/template"

	"github.com/jacobweinstock/tftpboot/data"
)

// Params are the request parameters of a boot request, e.g. mac, arch, subarch, local, remote.
type Params map[string]string

// RenderContext is everything a Method needs to render a configuration file.
type RenderContext struct {
	// Root is the TFTP root directory that kernel and initrd paths are relative to.
	Root   string
	Kernel data.BootParameters
	Params Params
}

// Method is one boot-loader configuration format.
type Method interface {
	Name() string
	// Match reports whether path is a configuration file of this method.
	Match(path string) bool
	// ExtractParams returns the parameters encoded in path. Only valid if Match(path) is true.
	ExtractParams(path string) Params
	Render(ctx context.Context, rc RenderContext) ([]byte, error)
}

// Registry is an ordered list of methods. The first match wins.
type Registry []Method

// Lookup returns the first method matching path.
func (r Registry) Lookup(path string) (Method, bool) {
	for _, m := range r {
		if m.Match(path) {
			return m, true
		}
	}
	return nil, false
}

// Default returns the built-in methods in registration order.
func Default() Registry {
	return Registry{NewPXE(), NewUEFI()}
}

// archAliases maps firmware architecture names to the controller's names.
var archAliases = map[string]string{
	"arm": "armhf",
}

// NormalizeArch rewrites a firmware architecture alias in p to its logical name.
func NormalizeArch(p Params) {
	if a, ok := archAliases[p["arch"]]; ok {
		p["arch"] = a
	}
}

// pattern is a Method driven by a regular expression with named groups and a text template.
type pattern struct {
	name string
	re   *regexp.Regexp
	tmpl *template.Template
}

func (p *pattern) Name() string {
	return p.name
}

func (p *pattern) Match(path string) bool {
	return p.re.MatchString(path)
}

func (p *pattern) ExtractParams(path string) Params {
	params := Params{}
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return params
	}
	for i, name := range p.re.SubexpNames() {
		if name == "" || m[i] == "" {
			continue
		}
		params[name] = m[i]
	}
	// firmware sends the MAC with dashes, the controller wants colons.
	if mac, ok := params["mac"]; ok {
		if hw, err := net.ParseMAC(mac); err == nil {
			params["mac"] = hw.String()
		}
	}
	return params
}

type templateData struct {
	Local   bool
	Label   string
	Kernel  string
	Initrd  string
	Cmdline string
	Params  Params
}

func (p *pattern) Render(_ context.Context, rc RenderContext) ([]byte, error) {
	d := templateData{
		Local:   rc.Kernel.Purpose == data.PurposeLocal,
		Label:   rc.Kernel.Label,
		Kernel:  rc.Kernel.KernelPath(),
		Initrd:  rc.Kernel.InitrdPath(),
		Cmdline: rc.Kernel.KernelCommandLine(),
		Params:  rc.Params,
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("failed to render %s config: %w", p.name, err)
	}
	return buf.Bytes(), nil
}
