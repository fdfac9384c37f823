package convert

// ExtractDoPPlanar extracts the embedded DSD bits from a DoP carrier.
// src holds interleaved 32-bit little-endian samples (channels-many
// per frame); for each sample, the DSD byte pair lives at offsets
// [1, 2] of its 4-byte container (scenario: "extracts DSD
// bytes [src+2, src+1] per channel per frame", i.e. big-endian order
// of the two embedded bytes once placed in the planar output). The
// result is planar: channel 0's bytes first, then channel 1's, etc.
// Returns the number of dst bytes written.
func ExtractDoPPlanar(dst, src []byte, channels int) int {
	if channels <= 0 {
		return 0
	}
	frameSize := 4 * channels
	frames := len(src) / frameSize
	if cap := len(dst) / (2 * channels); frames > cap {
		frames = cap
	}
	perChannel := frames * 2
	for fr := 0; fr < frames; fr++ {
		for c := 0; c < channels; c++ {
			s := src[fr*frameSize+c*4 : fr*frameSize+c*4+4]
			dOff := c*perChannel + fr*2
			dst[dOff] = s[2]
			dst[dOff+1] = s[1]
		}
	}
	return perChannel * channels
}

// DeinterleaveNativeDSD de-interleaves native DSD samples out of the
// upstream decoder's 32-bit-per-sample little-endian wire packing into
// planar form, applying the mandatory per-4-byte byte-swap that
// corrects for the decoder packing DSD bytes MSB-first into a
// container it then writes little-endian ("DSD byte-swap
// subtlety"). This swap is distinct from, and always applied ahead of,
// any target-endianness conversion mode applied later by
// DSDPlanarToInterleaved. Returns the number of dst bytes written.
func DeinterleaveNativeDSD(dst, src []byte, channels int) int {
	if channels <= 0 {
		return 0
	}
	frameSize := 4 * channels
	frames := len(src) / frameSize
	if cap := len(dst) / (4 * channels); frames > cap {
		frames = cap
	}
	perChannel := frames * 4
	for fr := 0; fr < frames; fr++ {
		for c := 0; c < channels; c++ {
			s := src[fr*frameSize+c*4 : fr*frameSize+c*4+4]
			dOff := c*perChannel + fr*4
			dst[dOff], dst[dOff+1], dst[dOff+2], dst[dOff+3] = s[3], s[2], s[1], s[0]
		}
	}
	return perChannel * channels
}
