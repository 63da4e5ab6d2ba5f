package tus

import "strings"

// Version is the protocol version spoken by this server.
const Version = "1.0.0"

// SupportedVersions lists every protocol version accepted in the
// Tus-Resumable request header.
var SupportedVersions = []string{Version}

const (
	HeaderTusResumable       = "Tus-Resumable"
	HeaderTusVersion         = "Tus-Version"
	HeaderTusExtension       = "Tus-Extension"
	HeaderTusMaxSize         = "Tus-Max-Size"
	HeaderUploadOffset       = "Upload-Offset"
	HeaderUploadLength       = "Upload-Length"
	HeaderUploadDeferLength  = "Upload-Defer-Length"
	HeaderUploadMetadata     = "Upload-Metadata"
	HeaderUploadConcat       = "Upload-Concat"
	HeaderMethodOverride     = "X-HTTP-Method-Override"
	HeaderForwardedHost      = "X-Forwarded-Host"
	HeaderForwardedProto     = "X-Forwarded-Proto"
	HeaderLocation           = "Location"
	HeaderContentType        = "Content-Type"
	HeaderContentLength      = "Content-Length"
	HeaderContentDisposition = "Content-Disposition"
	HeaderCacheControl       = "Cache-Control"
	HeaderOrigin             = "Origin"
	HeaderAllowOrigin        = "Access-Control-Allow-Origin"
	HeaderAllowMethods       = "Access-Control-Allow-Methods"
	HeaderAllowHeaders       = "Access-Control-Allow-Headers"
	HeaderExposeHeaders      = "Access-Control-Expose-Headers"
	HeaderMaxAge             = "Access-Control-Max-Age"
)

// ContentTypeOffsetOctetStream is the media type of PATCH request bodies.
const ContentTypeOffsetOctetStream = "application/offset+octet-stream"

// Extension names a store can declare.
const (
	ExtensionCreation            = "creation"
	ExtensionCreationWithUpload  = "creation-with-upload"
	ExtensionCreationDeferLength = "creation-defer-length"
	ExtensionTermination         = "termination"
	ExtensionConcatenation       = "concatenation"
)

// MaxAge is the number of seconds a browser may cache a preflight response.
const MaxAge = "86400"

var (
	allowedMethods = strings.Join([]string{
		"POST", "GET", "HEAD", "PATCH", "DELETE", "OPTIONS",
	}, ", ")

	allowedHeaders = strings.Join([]string{
		"Origin",
		"X-Requested-With",
		HeaderContentType,
		HeaderUploadLength,
		HeaderUploadOffset,
		HeaderTusResumable,
		HeaderUploadMetadata,
		HeaderUploadDeferLength,
		HeaderUploadConcat,
		HeaderMethodOverride,
	}, ", ")

	exposedHeaders = strings.Join([]string{
		HeaderUploadOffset,
		HeaderLocation,
		HeaderUploadLength,
		HeaderTusVersion,
		HeaderTusResumable,
		HeaderTusMaxSize,
		HeaderTusExtension,
		HeaderUploadMetadata,
		HeaderUploadDeferLength,
	}, ", ")
)
