package trigger

import (
	"net/url"
	"strings"
)

// LinkItem is a single whitelist/blacklist entry, a host with optional path
// prefixes. Empty Paths matches any path on the host.
type LinkItem struct {
	Host  string
	Paths []string
}

// LinkParams is a payload for link_disable and link_enable triggers.
// link_disable activates when any URL in the message is not covered by the
// whitelist; link_enable additionally requires the URL to match the blacklist.
type LinkParams struct {
	WhiteList []LinkItem
	BlackList []LinkItem
}

func (p *LinkParams) check(kind Kind, req Request) Response {
	for _, raw := range req.URLs {
		inWhite := inList(raw, p.WhiteList)
		switch kind {
		case LinkDisable:
			if !inWhite {
				return Response{Active: true, Reason: "ссылка: " + raw}
			}
		case LinkEnable:
			if !inWhite && inList(raw, p.BlackList) {
				return Response{Active: true, Reason: "ссылка: " + raw}
			}
		}
	}
	return Response{}
}

// inList reports if the URL belongs to any of the list items: the host has to
// end with the item's host (case-insensitive) and, if the item lists paths,
// the URL path has to start with one of them.
func inList(raw string, list []LinkItem) bool {
	host, path := splitURL(raw)
	if host == "" {
		return false
	}
	for _, item := range list {
		if !strings.HasSuffix(host, strings.ToLower(item.Host)) {
			continue
		}
		if len(item.Paths) == 0 {
			return true
		}
		for _, p := range item.Paths {
			p = strings.ToLower(p)
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			if strings.HasPrefix(path, p) {
				return true
			}
		}
	}
	return false
}

// splitURL extracts lowercased host and path from a url as it appears in the
// message. Scheme-less urls like "example.com/x" are common in plain-text
// entities and parsed as if they had one.
func splitURL(raw string) (host, path string) {
	s := raw
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", ""
	}
	return strings.ToLower(u.Hostname()), strings.ToLower(u.Path)
}
