// Package providers holds the shared plumbing of the provider adapters: the
// base-URL candidate set for co-located containers, the connection-class retry
// driver, and ordered message-id extraction from polymorphic responses.
package providers

import (
	"fmt"
	"net/url"
	"strings"
)

// Colocation carries the deployment hints used to rewrite a co-located
// container base URL.
type Colocation struct {
	// ContainerHost is the docker-network hostname of the provider container.
	ContainerHost string
	// HostPort is the host-mapped port reachable via loopback.
	HostPort string
}

// Candidates expands base into the ordered list of equivalent endpoints to try
// on connection errors. The configured base always comes first; rewrites are
// appended only when the base looks co-located (loopback or the container
// hostname itself).
func Candidates(base string, co Colocation) []string {
	base = strings.TrimRight(base, "/")
	out := []string{base}

	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return out
	}
	host := u.Hostname()

	colocated := host == "localhost" || host == "127.0.0.1" || (co.ContainerHost != "" && host == co.ContainerHost)
	if !colocated {
		return out
	}

	add := func(candidate string) {
		for _, have := range out {
			if have == candidate {
				return
			}
		}
		out = append(out, candidate)
	}

	if co.ContainerHost != "" {
		add(fmt.Sprintf("%s://%s:8080", u.Scheme, co.ContainerHost))
	}
	if co.HostPort != "" {
		add(fmt.Sprintf("%s://127.0.0.1:%s", u.Scheme, co.HostPort))
	}
	// Alternate scheme, same authority.
	alt := "https"
	if u.Scheme == "https" {
		alt = "http"
	}
	add(alt + "://" + u.Host)

	return out
}
