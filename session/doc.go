// Package session owns the lifecycle of one live phone call: the state
// machine bridging the telephony media stream to the voice agent, the
// transcript and topic bookkeeping used to steer the agent, the safe
// injection mechanism, and the registry of all concurrently active calls.
package session
