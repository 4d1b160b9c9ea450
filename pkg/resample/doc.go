// Package resample converts 16-bit PCM between sample rates and channel
// counts.
//
// The device audio engine uses it to adapt a TTS provider's native rate
// (e.g. 16 kHz) to the sink's open rate (48 kHz for Bluetooth, the native
// rate for an I2S HAT) before the playback pipeline aggregates and writes
// the stream.
//
// Example usage:
//
//	src := resample.Format{SampleRate: 16000, Stereo: false}
//	dst := resample.Format{SampleRate: 48000, Stereo: false}
//	r, err := resample.New(audioReader, src, dst)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	io.Copy(output, r)
package resample
