package tus

import (
	"mime"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	reToken   = regexp.MustCompile(`^[A-Za-z][A-Za-z-]*$`)
	reVersion = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	reExtName = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// IsInvalidHeader reports whether value violates the grammar of the protocol
// header called name. Headers unknown to the protocol are always valid.
func IsInvalidHeader(name string, value string) bool {
	switch http.CanonicalHeaderKey(name) {
	case HeaderUploadOffset, HeaderUploadLength, HeaderTusMaxSize:
		return !isNonNegativeInteger(value)
	case HeaderUploadDeferLength:
		return value != "1"
	case HeaderUploadMetadata:
		_, err := ParseMetadata(value)
		return err != nil
	case HeaderTusResumable:
		return !slices.Contains(SupportedVersions, value)
	case HeaderTusVersion:
		return !isListOf(value, reVersion)
	case HeaderTusExtension:
		return !isListOf(value, reExtName)
	case http.CanonicalHeaderKey(HeaderMethodOverride):
		return !reToken.MatchString(value)
	case HeaderForwardedHost:
		return value == "" || strings.ContainsAny(value, " \t/")
	case HeaderContentType:
		_, _, err := mime.ParseMediaType(value)
		return err != nil
	}

	return false
}

// invalidHeaders returns the sorted canonical names of every header in h
// with at least one invalid value. Content-Type is only checked when
// checkContentType is set.
func invalidHeaders(h http.Header, checkContentType bool) []string {
	var names []string
	for name, values := range h {
		if name == HeaderContentType && !checkContentType {
			continue
		}

		for _, value := range values {
			if IsInvalidHeader(name, value) {
				names = append(names, name)
				break
			}
		}
	}

	slices.Sort(names)
	return names
}

func isNonNegativeInteger(value string) bool {
	if value == "" || strings.TrimLeft(value, "0123456789") != "" {
		return false
	}
	_, err := strconv.ParseInt(value, 10, 64)
	return err == nil
}

func isListOf(value string, re *regexp.Regexp) bool {
	for _, item := range strings.Split(value, ",") {
		if !re.MatchString(strings.TrimSpace(item)) {
			return false
		}
	}
	return true
}
