package tus

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Metadata is the decoded form of the Upload-Metadata header.
type Metadata map[string]string

var errMalformedMetadata = errors.New("malformed Upload-Metadata")

// ParseMetadata decodes an Upload-Metadata header value. The header consists
// of comma separated pairs of a key and a base64 encoded value, separated by
// a single space. A key may appear without a value. Keys must be unique.
func ParseMetadata(header string) (Metadata, error) {
	meta := make(Metadata)
	if strings.TrimSpace(header) == "" {
		return meta, nil
	}

	for _, element := range strings.Split(header, ",") {
		element = strings.TrimSpace(element)

		parts := strings.Split(element, " ")
		if len(parts) > 2 {
			return nil, fmt.Errorf("%w: too many parts in %q", errMalformedMetadata, element)
		}

		key := parts[0]
		if key == "" {
			return nil, fmt.Errorf("%w: empty key", errMalformedMetadata)
		}

		if _, dup := meta[key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", errMalformedMetadata, key)
		}

		value := ""
		if len(parts) == 2 {
			decoded, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				return nil, fmt.Errorf("%w: value of %q: %v", errMalformedMetadata, key, err)
			}
			value = string(decoded)
		}

		meta[key] = value
	}

	return meta, nil
}

// String serializes the metadata in the Upload-Metadata header format with
// keys in lexical order.
func (m Metadata) String() string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		if m[key] == "" {
			pairs = append(pairs, key)
			continue
		}
		pairs = append(pairs, key+" "+base64.StdEncoding.EncodeToString([]byte(m[key])))
	}

	return strings.Join(pairs, ",")
}
