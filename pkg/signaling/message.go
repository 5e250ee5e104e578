package signaling

import (
	"encoding/json"
	"strings"

	"github.com/pion/webrtc/v4"
)

// MessageKind is a best-effort label for a relayed message. It is used for
// logging and metrics only; relay behaviour never depends on it.
type MessageKind string

const (
	KindOffer     MessageKind = "offer"
	KindAnswer    MessageKind = "answer"
	KindCandidate MessageKind = "candidate"
	KindOther     MessageKind = "other"
)

// envelope covers the shapes browsers commonly send: a bare
// RTCSessionDescriptionInit, {type, sdp}, or a candidate wrapper whose
// candidate is either a string or an RTCIceCandidateInit.
type envelope struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

// Classify labels msg as an offer, answer, ICE candidate or other.
func Classify(msg string) MessageKind {
	trimmed := strings.TrimSpace(msg)
	if strings.HasPrefix(trimmed, "{") {
		var env envelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
			return classifyEnvelope(env)
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "offer"):
		return KindOffer
	case strings.Contains(lower, "answer"):
		return KindAnswer
	case strings.Contains(lower, "candidate"):
		return KindCandidate
	default:
		return KindOther
	}
}

func classifyEnvelope(env envelope) MessageKind {
	switch webrtc.NewSDPType(strings.ToLower(env.Type)) {
	case webrtc.SDPTypeOffer:
		return KindOffer
	case webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer:
		return KindAnswer
	}

	if len(env.Candidate) > 0 && isCandidate(env.Candidate) {
		return KindCandidate
	}
	switch strings.ToLower(env.Type) {
	case "candidate", "ice-candidate", "icecandidate":
		return KindCandidate
	}
	return KindOther
}

func isCandidate(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s != ""
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err == nil {
		return init.Candidate != ""
	}
	return false
}
