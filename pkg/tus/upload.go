package tus

import "time"

// Upload describes one upload resource. It is owned by the DataStore that
// created it; handlers only ever see copies.
type Upload struct {
	ID string `json:"id"`

	// Size is the number of bytes durably stored so far.
	Size int64 `json:"size"`

	// Length is the total number of bytes expected. It is meaningless while
	// LengthDeferred is set.
	Length         int64 `json:"upload_length"`
	LengthDeferred bool  `json:"upload_defer_length"`

	// Metadata is the Upload-Metadata header exactly as it was supplied at
	// creation.
	Metadata  string    `json:"upload_metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsComplete reports whether every expected byte has been stored.
func (u *Upload) IsComplete() bool {
	return !u.LengthDeferred && u.Size == u.Length
}

// Remaining returns the number of bytes still expected, or -1 when the length
// has been deferred.
func (u *Upload) Remaining() int64 {
	if u.LengthDeferred {
		return -1
	}
	return u.Length - u.Size
}

// DecodedMetadata parses the stored metadata. Malformed metadata never makes
// it past creation, so errors yield an empty map.
func (u *Upload) DecodedMetadata() Metadata {
	meta, err := ParseMetadata(u.Metadata)
	if err != nil {
		return Metadata{}
	}
	return meta
}

// UploadSpec carries the creation parameters taken from a POST request.
// Length is -1 when no Upload-Length was supplied.
type UploadSpec struct {
	Length         int64
	LengthDeferred bool
	Metadata       string
}

// NewUploadSpec returns a spec for an upload of a known length.
func NewUploadSpec(length int64, metadata string) UploadSpec {
	return UploadSpec{Length: length, Metadata: metadata}
}

// NewDeferredUploadSpec returns a spec for an upload whose length will be
// declared later.
func NewDeferredUploadSpec(metadata string) UploadSpec {
	return UploadSpec{Length: -1, LengthDeferred: true, Metadata: metadata}
}

// Validate enforces that exactly one of a known length or a deferred length
// was requested.
func (s UploadSpec) Validate() error {
	hasLength := s.Length >= 0
	if hasLength == s.LengthDeferred || s.Length < -1 {
		return ErrInvalidLength
	}
	return nil
}
