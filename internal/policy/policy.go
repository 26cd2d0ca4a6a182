// Package policy implements the stateless allow-list and resource-blocking
// decision the render coordinator consults before and during a render.
package policy

import "strings"

// ResourceType mirrors the subset of CDP network.ResourceType values the
// filter cares about.
type ResourceType string

// Resource types the filter can block. Only fonts are blocked by default;
// the main document is never subject to blocking regardless of type.
const (
	ResourceFont       ResourceType = "Font"
	ResourceImage      ResourceType = "Image"
	ResourceMedia      ResourceType = "Media"
	ResourceStylesheet ResourceType = "Stylesheet"
	ResourceScript     ResourceType = "Script"
	ResourceDocument   ResourceType = "Document"
)

// Filter is a pure, stateless domain allow-list plus a blocked-resource-type
// set. It holds no mutable state and is safe for concurrent use.
type Filter struct {
	allowedDomains []string // suffix-matched against the request host
	blockedTypes   map[ResourceType]bool
}

// New builds a Filter. allowedDomains is a list of suffixes (e.g.
// "example.com" matches "example.com" and "www.example.com"); an empty list
// means every domain is allowed. blockFonts mirrors the Policy.BlockFonts
// configuration knob.
func New(allowedDomains []string, blockFonts bool) *Filter {
	blocked := make(map[ResourceType]bool)
	if blockFonts {
		blocked[ResourceFont] = true
	}

	domains := make([]string, len(allowedDomains))
	for i, d := range allowedDomains {
		domains[i] = strings.ToLower(strings.TrimSpace(d))
	}

	return &Filter{allowedDomains: domains, blockedTypes: blocked}
}

// AllowDomain reports whether host is permitted by the allow-list. An empty
// allow-list permits every host.
func (f *Filter) AllowDomain(host string) bool {
	if len(f.allowedDomains) == 0 {
		return true
	}

	host = strings.ToLower(host)
	for _, suffix := range f.allowedDomains {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// DecideResource reports whether a subresource request of the given type
// should be blocked during a render. The main document is never blocked
// here; that decision is AllowDomain's, made before navigation begins.
func (f *Filter) DecideResource(resourceType ResourceType) bool {
	if resourceType == ResourceDocument {
		return false
	}
	return f.blockedTypes[resourceType]
}
