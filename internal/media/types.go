// Package media is the boundary to the external media transport engine.
// The signaling layer only ever sees these interfaces and parameter
// structs; ICE/DTLS/RTP negotiation happens on the other side of them.
package media

import "github.com/pion/webrtc/v4"

type Kind string

const KindAudio Kind = "audio"

type RTPCapabilities struct {
	Codecs           []webrtc.RTPCodecCapability `json:"codecs"`
	HeaderExtensions []string                    `json:"headerExtensions,omitempty"`
}

type RTPParameters struct {
	MID    string                      `json:"mid,omitempty"`
	Codecs []webrtc.RTPCodecParameters `json:"codecs"`
}

type DTLSParameters struct {
	Role         string                   `json:"role,omitempty"`
	Fingerprints []webrtc.DTLSFingerprint `json:"fingerprints"`
}

// TransportParams is everything a client needs to connect one transport.
type TransportParams struct {
	ID             string                    `json:"id"`
	ICEParameters  webrtc.ICEParameters      `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidateInit `json:"iceCandidates"`
	DTLSParameters DTLSParameters            `json:"dtlsParameters"`
}

type ConsumerParams struct {
	ID            string        `json:"id"`
	ProducerID    string        `json:"producerId"`
	Kind          Kind          `json:"kind"`
	RTPParameters RTPParameters `json:"rtpParameters"`
}
