// Package signaling defines the messages exchanged between two peers while
// they negotiate a media session, and their JSON wire encoding.
//
// Two message kinds exist:
//
//	{ "messageType": "sdp",       "data": { "type": "offer"|"answer", "sdp": "..." } }
//	{ "messageType": "candidate", "data": { "sdpMid": "...", "sdpMLineIndex": 0, "sdp": "..." } }
//
// Messages with an unknown messageType decode to ErrUnknownMessageType so the
// receiver can log and skip them without tearing the connection down.
package signaling
