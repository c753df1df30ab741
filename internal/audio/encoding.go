package audio

import (
	"fmt"
	"runtime"
	"strings"
)

// Family identifies the platform class whose recorders produce a given container.
type Family string

const (
	FamilyApple   Family = "apple"
	FamilyAndroid Family = "android"
	FamilyLinux   Family = "linux"
	FamilyGeneric Family = "generic"
)

// ParseFamily accepts a configured family name; "auto" and "" detect from the host.
func ParseFamily(raw string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return DetectFamily(runtime.GOOS), nil
	case string(FamilyApple):
		return FamilyApple, nil
	case string(FamilyAndroid):
		return FamilyAndroid, nil
	case string(FamilyLinux):
		return FamilyLinux, nil
	case string(FamilyGeneric):
		return FamilyGeneric, nil
	default:
		return "", fmt.Errorf("unknown platform family %q", raw)
	}
}

// DetectFamily maps a GOOS value onto a platform family.
func DetectFamily(goos string) Family {
	switch goos {
	case "darwin", "ios":
		return FamilyApple
	case "android":
		return FamilyAndroid
	case "linux", "freebsd", "openbsd", "netbsd":
		return FamilyLinux
	default:
		return FamilyGeneric
	}
}

// Encoding describes the container and codec a recorder produces.
type Encoding struct {
	Container   string
	Codec       string
	ContentType string
	Extension   string
}

// IsZero reports whether no encoding was negotiated.
func (e Encoding) IsZero() bool {
	return e.ContentType == ""
}

var (
	encodingM4A  = Encoding{Container: "mp4", Codec: "aac", ContentType: "audio/mp4", Extension: "m4a"}
	encodingWebM = Encoding{Container: "webm", Codec: "opus", ContentType: "audio/webm", Extension: "webm"}
	encodingWAV  = Encoding{Container: "wav", Codec: "pcm_s16le", ContentType: "audio/wav", Extension: "wav"}
	encodingOgg  = Encoding{Container: "ogg", Codec: "opus", ContentType: "audio/ogg", Extension: "ogg"}
)

// Preferences lists encodings in the order a family's recorders should try them.
func Preferences(family Family) []Encoding {
	switch family {
	case FamilyApple:
		return []Encoding{encodingM4A, encodingWAV}
	case FamilyAndroid:
		return []Encoding{encodingWebM, encodingM4A, encodingWAV}
	case FamilyLinux:
		return []Encoding{encodingWAV, encodingOgg, encodingWebM}
	default:
		return []Encoding{encodingWebM, encodingWAV}
	}
}

// DefaultContentType is the label used when a recorder does not report one.
func DefaultContentType(family Family) string {
	return Preferences(family)[0].ContentType
}

// ExtensionFor derives the upload filename extension from a declared content type.
// Only exact base types match; anything else takes the family default.
func ExtensionFor(contentType string, family Family) string {
	base := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(base, ';'); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}

	switch base {
	case "audio/webm":
		return "webm"
	case "audio/mp4":
		return "m4a"
	case "audio/mpeg":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/ogg":
		return "ogg"
	}

	if family == FamilyApple {
		return "m4a"
	}
	return "webm"
}

// AlternateContentType returns the family's next content-type label that differs
// from declared, used for a single relabelled retry. It returns "" when none exists.
func AlternateContentType(family Family, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	for _, enc := range Preferences(family) {
		if !strings.HasPrefix(declared, enc.ContentType) {
			return enc.ContentType
		}
	}
	return ""
}

// ContentTypeForExtension maps a recording's file extension onto the content
// type label used for upload. Unknown extensions fall back to the family default.
func ContentTypeForExtension(ext string, family Family) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "webm":
		return encodingWebM.ContentType
	case "m4a", "mp4", "aac":
		return encodingM4A.ContentType
	case "wav":
		return encodingWAV.ContentType
	case "ogg", "opus":
		return encodingOgg.ContentType
	case "mp3":
		return "audio/mpeg"
	default:
		return DefaultContentType(family)
	}
}
