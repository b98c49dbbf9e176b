package media

import (
	"errors"
	"fmt"
	"strings"
)

// SDPKind names the description being patched.
type SDPKind int

const (
	SDPLocalOffer SDPKind = iota
	SDPLocalAnswer
	SDPRemoteOffer
	SDPRemoteAnswer
)

// ExtensionConfig controls which RTP header extensions survive the patch.
// Header-extension negotiation depends on whether the peer supports video
// calling; offering video-only extensions to an audio-only peer breaks
// older implementations.
type ExtensionConfig struct {
	VideoSupported bool
}

// ErrBadSDP is returned when the description does not have the expected shape.
var ErrBadSDP = errors.New("malformed session description")

// Extensions stripped from local offers when the peer has no video support.
var videoOnlyExtensions = []string{
	"urn:3gpp:video-orientation",
	"http://www.webrtc.org/experiments/rtp-hdrext/video-content-type",
	"http://www.webrtc.org/experiments/rtp-hdrext/video-timing",
}

// Patch applies protocol-compliance rewrites to an SDP body. Only local
// offers are rewritten in this design; other kinds pass through after
// shape validation.
func Patch(kind SDPKind, sdp string, cfg ExtensionConfig) (string, error) {
	if !strings.HasPrefix(sdp, "v=0") {
		return "", fmt.Errorf("%w: missing version line", ErrBadSDP)
	}

	if kind != SDPLocalOffer || cfg.VideoSupported {
		return sdp, nil
	}

	lines := strings.Split(sdp, "\r\n")
	crlf := true
	if len(lines) == 1 {
		lines = strings.Split(sdp, "\n")
		crlf = false
	}

	out := lines[:0]
	for _, line := range lines {
		if isVideoOnlyExtmap(line) {
			continue
		}
		out = append(out, line)
	}

	sep := "\n"
	if crlf {
		sep = "\r\n"
	}
	return strings.Join(out, sep), nil
}

func isVideoOnlyExtmap(line string) bool {
	if !strings.HasPrefix(line, "a=extmap:") {
		return false
	}
	for _, uri := range videoOnlyExtensions {
		if strings.Contains(line, uri) {
			return true
		}
	}
	return false
}
