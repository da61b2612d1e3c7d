package fscache

import (
	"slices"
	"time"
)

// Metadata field names reported in [Capabilities.SupportedMetadata].
const (
	MetadataMTime    = "mtime"
	MetadataFileSpec = "filespec"
	MetadataATime    = "atime"
	MetadataCTime    = "ctime"
)

// maxFileNameLength is the file name limit of common filesystems (ext4, xfs,
// apfs).
const maxFileNameLength = 255

// Capabilities are the limits derived from [Options].
type Capabilities struct {
	// MaxKeyLength is the longest key whose entry and tag file names fit in
	// a single path component.
	MaxKeyLength int

	// SupportedMetadata lists the fields [Cache.GetMetadata] fills in.
	SupportedMetadata []string

	// MinTTL and TTLPrecision are one second: expiry is stored as unix
	// seconds.
	MinTTL       time.Duration
	TTLPrecision time.Duration

	// NamespaceSeparator joins namespace and key in file names.
	NamespaceSeparator string
}

// SupportsMetadata reports whether field is in SupportedMetadata.
func (c Capabilities) SupportsMetadata(field string) bool {
	return slices.Contains(c.SupportedMetadata, field)
}

func computeCapabilities(o Options) (Capabilities, error) {
	maxKeyLength := maxFileNameLength - 1 - max(len(o.Suffix), len(o.TagSuffix))
	if o.Namespace != "" {
		maxKeyLength -= len(o.Namespace) + len(o.NamespaceSeparator)
	}

	if maxKeyLength < 1 {
		return Capabilities{}, invalidArgument(
			"computed maximum key length %d is below 1: namespace %q is too long", maxKeyLength, o.Namespace)
	}

	metadata := []string{MetadataMTime, MetadataFileSpec}
	if !o.NoAtime {
		metadata = append(metadata, MetadataATime)
	}

	if !o.NoCtime {
		metadata = append(metadata, MetadataCTime)
	}

	return Capabilities{
		MaxKeyLength:       maxKeyLength,
		SupportedMetadata:  metadata,
		MinTTL:             time.Second,
		TTLPrecision:       time.Second,
		NamespaceSeparator: o.NamespaceSeparator,
	}, nil
}
