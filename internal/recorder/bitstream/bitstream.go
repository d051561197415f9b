// Package bitstream inspects encoded frames without decoding them.
package bitstream

// H.264 NAL unit types used for keyframe detection.
const (
	NALSlice = 1
	NALIDR   = 5
	NALSEI   = 6
	NALSPS   = 7
	NALPPS   = 8
	NALAUD   = 9
)

// VP8Keyframe reports whether b starts a VP8 key frame. The frame tag's
// lowest bit is 0 for key frames and the start code follows the tag.
func VP8Keyframe(b []byte) bool {
	if len(b) < 10 {
		return false
	}
	if b[0]&0x01 != 0 {
		return false
	}
	return b[3] == 0x9d && b[4] == 0x01 && b[5] == 0x2a
}

// SplitAnnexB returns the NAL units in an Annex-B byte stream with their
// start codes removed. Data before the first start code is ignored.
func SplitAnnexB(b []byte) [][]byte {
	var nalus [][]byte
	start := -1
	i := 0
	for i+2 < len(b) {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			if start >= 0 {
				end := i
				// A 4-byte start code leaves a trailing zero on the previous unit.
				if end > start && b[end-1] == 0 {
					end--
				}
				nalus = append(nalus, b[start:end])
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(b) {
		nalus = append(nalus, b[start:])
	}
	return nalus
}

// NALType returns the nal_unit_type of a NAL unit without start code.
func NALType(nalu []byte) int {
	if len(nalu) == 0 {
		return -1
	}
	return int(nalu[0] & 0x1f)
}

// H264Keyframe reports whether an Annex-B access unit contains an IDR slice.
func H264Keyframe(b []byte) bool {
	for _, nalu := range SplitAnnexB(b) {
		if NALType(nalu) == NALIDR {
			return true
		}
	}
	return false
}
