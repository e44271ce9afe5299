// Copyright 2023 SpotHero
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var (
	forwardedHostPattern  = regexp.MustCompile(`(?i)host=([^;]+)`)
	forwardedProtoPattern = regexp.MustCompile(`(?i)proto=([^;]+)`)
	hostPortPattern       = regexp.MustCompile(`^.*:[0-9]+$`)
)

// buildBaseURI derives the instance URI returned by consumer creation. When
// the bridge sits behind a forwarding proxy, the client-facing scheme and
// authority come from the Forwarded header, falling back to the legacy
// X-Forwarded-Host/X-Forwarded-Proto pair, and finally to the request's own
// absolute URI. X-Forwarded-Path, when present with a forwarded source,
// replaces the request path.
func buildBaseURI(r *http.Request, instanceName string) (string, error) {
	scheme := r.Header.Get("X-Forwarded-Proto")
	host := r.Header.Get("X-Forwarded-Host")
	forwardedPath := r.Header.Get("X-Forwarded-Path")

	// only the first Forwarded header is honored
	if forwarded := r.Header.Get("Forwarded"); forwarded != "" {
		hostMatch := forwardedHostPattern.FindStringSubmatch(forwarded)
		protoMatch := forwardedProtoPattern.FindStringSubmatch(forwarded)
		if hostMatch != nil && protoMatch != nil {
			host = hostMatch[1]
			scheme = protoMatch[1]
		}
	}

	requestURI := ""
	if host != "" && scheme != "" {
		path := r.URL.Path
		if forwardedPath != "" {
			path = forwardedPath
		}
		formatted, err := formatRequestURI(scheme, host, path)
		if err != nil {
			return "", err
		}
		requestURI = formatted
	} else {
		requestURI = absoluteURI(r)
	}

	if !strings.HasSuffix(r.URL.Path, "/") {
		requestURI += "/"
	}
	return requestURI + "instances/" + instanceName, nil
}

// formatRequestURI assembles the forwarded scheme, authority, and path,
// appending the scheme's default port when the forwarded host carries none.
func formatRequestURI(scheme, host, path string) (string, error) {
	if !hostPortPattern.MatchString(host) {
		switch scheme {
		case "http":
			host += ":80"
		case "https":
			host += ":443"
		default:
			return "", NewError(
				http.StatusInternalServerError,
				fmt.Sprintf("%s is not a valid schema/proto.", scheme),
			)
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path), nil
}

// absoluteURI reconstructs the request's own absolute URI.
func absoluteURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.Path)
}
