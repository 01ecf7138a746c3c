// Package negotiation implements the offer/answer exchange between a host and
// a joiner, including the buffering of remote ICE candidates.
//
// The host creates an offer when the signaling link comes up and applies the
// joiner's answer. The joiner applies the host's offer and replies with an
// answer. Local candidates are sent as soon as they are produced. Remote
// candidates that arrive before the remote description has been applied are
// queued and applied in arrival order right after it.
//
// Each Negotiator handles exactly one offer and one answer. A second remote
// description is rejected; a fresh negotiation requires a new Negotiator.
package negotiation
