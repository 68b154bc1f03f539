// Package telephony implements the media-stream side of a call: typed
// decoding of the provider's JSON frame envelopes and the MediaRelay that
// translates between frames and raw audio bytes.
package telephony
