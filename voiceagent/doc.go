// Package voiceagent implements the client side of the hosted voice-agent
// protocol: a duplex WebSocket connection that streams caller audio up,
// receives agent audio and JSON events back, and carries the side channel
// for context injection and function-call results.
package voiceagent
