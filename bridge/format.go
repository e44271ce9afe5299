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
	"net/http"
	"strings"
)

// Format is the embedded format of a consumer instance or produce request:
// how record keys and values are represented inside the JSON envelope.
type Format string

// The two supported embedded formats. Binary embeds keys and values as base64
// strings; JSON embeds them as structured JSON.
const (
	FormatBinary Format = "binary"
	FormatJSON   Format = "json"
)

// Content types of the HTTP surface. Metadata covers error envelopes, offset
// envelopes, and creation responses; the embedded types carry records.
const (
	contentTypeMetadata = "application/vnd.kafka.v2+json"
	contentTypeBinary   = "application/vnd.kafka.binary.v2+json"
	contentTypeJSON     = "application/vnd.kafka.json.v2+json"
)

// errInvalidFormat rejects creation bodies whose format is outside the
// supported set.
var errInvalidFormat = NewError(http.StatusUnprocessableEntity, "Invalid format type.")

// errFormatMismatch rejects polls whose Accept header does not carry the
// instance's embedded format.
var errFormatMismatch = NewError(
	http.StatusNotAcceptable,
	"Consumer format does not match the embedded format requested by the Accept header.",
)

// ParseFormat resolves the optional format field of a creation body. Absent
// means binary.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "binary":
		return FormatBinary, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", errInvalidFormat
	}
}

// ContentType returns the embedded content type records of this format are
// served with.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return contentTypeJSON
	}
	return contentTypeBinary
}

// CheckAccept validates a poll's Accept header against the instance format.
// The header must name the instance's embedded content type.
func (f Format) CheckAccept(accept string) error {
	if strings.Contains(strings.ToLower(accept), f.ContentType()) {
		return nil
	}
	return errFormatMismatch
}

// FormatFromContentType resolves the embedded format a produce request
// declares through its Content-Type header.
func FormatFromContentType(contentType string) (Format, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mediaType {
	case contentTypeBinary:
		return FormatBinary, nil
	case contentTypeJSON:
		return FormatJSON, nil
	default:
		return "", errInvalidFormat
	}
}
