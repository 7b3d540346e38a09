package enums

import "strings"

// DownloadType is a purchasable variant of a beat.
type DownloadType string

const (
	DownloadTypeMP3   DownloadType = "mp3"
	DownloadTypeWAV   DownloadType = "wav"
	DownloadTypeStems DownloadType = "stems"
)

var downloadTypes = []DownloadType{DownloadTypeMP3, DownloadTypeWAV, DownloadTypeStems}

// AllDownloadTypes returns the variants in catalog order.
func AllDownloadTypes() []DownloadType {
	return append([]DownloadType(nil), downloadTypes...)
}

func (d DownloadType) String() string { return string(d) }

func (d DownloadType) IsValid() bool {
	_, err := parse("download type", string(d), string(d), downloadTypes)
	return err == nil
}

// ContentType is the MIME type the asset is served with.
func (d DownloadType) ContentType() string {
	switch d {
	case DownloadTypeMP3:
		return "audio/mpeg"
	case DownloadTypeWAV:
		return "audio/wav"
	case DownloadTypeStems:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// Extension is used in download filenames; stems ship as a zip.
func (d DownloadType) Extension() string {
	if d == DownloadTypeStems {
		return "zip"
	}
	return string(d)
}

// ParseDownloadType accepts any case and surrounding whitespace.
func ParseDownloadType(value string) (DownloadType, error) {
	return parse("download type", value, strings.ToLower(strings.TrimSpace(value)), downloadTypes)
}
