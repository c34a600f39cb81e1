// Package giturl parses git repository references, which come in URL form
// (https://host/path.git) or scp-like form (git@host:path.git). url.Parse
// alone mishandles the implied-scheme forms, so those are rewritten first.
package giturl

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var scpSyntax = regexp.MustCompile(`^(?:([^@/:]+)@)?([^/:]+):(.*)$`)

var knownSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"git":   {},
	"ssh":   {},
	"ftp":   {},
	"ftps":  {},
	"file":  {},
}

// Parse parses a git repository reference and returns a normalized URL.
// scp-like references are rewritten to ssh:// URLs.
func Parse(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty repository URL")
	}

	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		if _, ok := knownSchemes[u.Scheme]; ok {
			return u, nil
		}
		// A reference like host.xz:path parses with the host as scheme;
		// fall through to the scp-like form.
	}

	if m := scpSyntax.FindStringSubmatch(raw); m != nil {
		u := &url.URL{
			Scheme: "ssh",
			Host:   m[2],
			Path:   m[3],
		}
		if m[1] != "" {
			u.User = url.User(m[1])
		}
		if !strings.HasPrefix(u.Path, "/") {
			u.Path = "/" + u.Path
		}
		return u, nil
	}

	return nil, fmt.Errorf("cannot parse repository URL %q", raw)
}
