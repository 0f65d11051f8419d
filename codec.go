package capture

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecAV1
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	case VideoCodecAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// MimeType returns the RTP MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return webrtc.MimeTypeVP8
	case VideoCodecVP9:
		return webrtc.MimeTypeVP9
	case VideoCodecH264:
		return webrtc.MimeTypeH264
	case VideoCodecAV1:
		return webrtc.MimeTypeAV1
	default:
		return ""
	}
}

// codecParam returns the name used in a container "codecs" parameter.
func (c VideoCodec) codecParam() string {
	switch c {
	case VideoCodecUnknown:
		return ""
	default:
		return strings.ToLower(c.String())
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecVorbis
	AudioCodecG711A // A-law (PCMA)
	AudioCodecG711U // μ-law (PCMU)
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecVorbis:
		return "Vorbis"
	case AudioCodecG711A:
		return "PCMA"
	case AudioCodecG711U:
		return "PCMU"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return webrtc.MimeTypeOpus
	case AudioCodecVorbis:
		return "audio/vorbis"
	case AudioCodecG711A:
		return webrtc.MimeTypePCMA
	case AudioCodecG711U:
		return webrtc.MimeTypePCMU
	default:
		return ""
	}
}

func (c AudioCodec) codecParam() string {
	switch c {
	case AudioCodecUnknown:
		return ""
	default:
		return strings.ToLower(c.String())
	}
}

// ContainerWebM is the container type recordings are declared as when the
// recorder could not report a codec-qualified type.
const ContainerWebM = "video/webm"

// Encoding describes a recorder output format: a container plus optional
// video and audio codecs. The zero value means "encoder default".
type Encoding struct {
	Container string
	Video     VideoCodec
	Audio     AudioCodec
}

// IsDefault reports whether no explicit encoding is requested.
func (e Encoding) IsDefault() bool {
	return e.Container == ""
}

// String formats the encoding as a media type, e.g. "video/webm;codecs=vp9,opus".
func (e Encoding) String() string {
	if e.Container == "" {
		return ""
	}
	var codecs []string
	if p := e.Video.codecParam(); p != "" {
		codecs = append(codecs, p)
	}
	if p := e.Audio.codecParam(); p != "" {
		codecs = append(codecs, p)
	}
	if len(codecs) == 0 {
		return e.Container
	}
	return e.Container + ";codecs=" + strings.Join(codecs, ",")
}

// ParseEncoding parses a media type such as "video/webm;codecs=vp8,opus".
// The empty string parses to the default encoding.
func ParseEncoding(s string) (Encoding, error) {
	if strings.TrimSpace(s) == "" {
		return Encoding{}, nil
	}
	parts := strings.Split(s, ";")
	container := strings.ToLower(strings.TrimSpace(parts[0]))
	if !strings.Contains(container, "/") {
		return Encoding{}, fmt.Errorf("%w: %q: not a media type", ErrEncodingUnsupported, s)
	}
	enc := Encoding{Container: container}
	var codecs string
	for _, param := range parts[1:] {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			return Encoding{}, fmt.Errorf("%w: %q: malformed parameter %q", ErrEncodingUnsupported, s, param)
		}
		if strings.EqualFold(strings.TrimSpace(key), "codecs") {
			codecs = strings.Trim(strings.TrimSpace(value), `"`)
		}
	}
	for _, name := range strings.Split(codecs, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
		case "vp8":
			enc.Video = VideoCodecVP8
		case "vp9", "vp09":
			enc.Video = VideoCodecVP9
		case "h264", "avc1":
			enc.Video = VideoCodecH264
		case "av1", "av01":
			enc.Video = VideoCodecAV1
		case "opus":
			enc.Audio = AudioCodecOpus
		case "vorbis":
			enc.Audio = AudioCodecVorbis
		case "pcma":
			enc.Audio = AudioCodecG711A
		case "pcmu":
			enc.Audio = AudioCodecG711U
		default:
			return Encoding{}, fmt.Errorf("%w: unknown codec %q in %q", ErrEncodingUnsupported, name, s)
		}
	}
	return enc, nil
}

// DefaultEncodings is the recorder fallback chain: preferred, more
// compatible, and finally the encoder default.
var DefaultEncodings = []string{
	Encoding{Container: ContainerWebM, Video: VideoCodecVP9, Audio: AudioCodecOpus}.String(),
	Encoding{Container: ContainerWebM, Video: VideoCodecVP8, Audio: AudioCodecOpus}.String(),
	"",
}
