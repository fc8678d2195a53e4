// Package audio provides the raw-PCM primitives of the aircheck pipeline:
// size-bounded frame batching and byte/duration arithmetic for the fixed
// 16-bit mono stream format the realtime service consumes.
package audio

import "time"

// DefaultSampleRate is the sample rate the realtime service expects.
const DefaultSampleRate = 24000

// bytesPerSample is the width of one 16-bit mono PCM sample.
const bytesPerSample = 2

// BytesPerSecond returns the byte rate of a 16-bit mono PCM stream at the
// given sample rate.
func BytesPerSecond(sampleRate int) int {
	return sampleRate * bytesPerSample
}

// BytesFor returns the number of bytes covering d of audio at the given
// sample rate. The conversion is exact for fixed-rate, fixed-width PCM;
// fractional samples are truncated.
func BytesFor(d time.Duration, sampleRate int) int {
	if d <= 0 {
		return 0
	}
	return int(int64(BytesPerSecond(sampleRate)) * int64(d) / int64(time.Second))
}

// Duration returns the play time of n bytes of audio at the given sample rate.
func Duration(n, sampleRate int) time.Duration {
	bps := BytesPerSecond(sampleRate)
	if bps <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}
