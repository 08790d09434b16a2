// Package simid implements the host side of the SIMID 1.2 message protocol
// used to run an interactive creative in a sandboxed frame.
package simid

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// Protocol message types.
const (
	TypeCreateSession = "createSession"
	TypeResolve       = "resolve"
	TypeReject        = "reject"
)

// Messages sent by the player.
const (
	PlayerInit            = "SIMID:Player:init"
	PlayerStartCreative   = "SIMID:Player:startCreative"
	PlayerAdSkipped       = "SIMID:Player:adSkipped"
	PlayerAdStopped       = "SIMID:Player:adStopped"
	PlayerFatalError      = "SIMID:Player:fatalError"
	PlayerResize          = "SIMID:Player:resize"
	PlayerLog             = "SIMID:Player:log"
	PlayerAppBackgrounded = "SIMID:Player:appBackgrounded"
	PlayerAppForegrounded = "SIMID:Player:appForegrounded"
)

// Media events forwarded to the creative.
const (
	MediaDurationChange = "SIMID:Media:durationchange"
	MediaEnded          = "SIMID:Media:ended"
	MediaPause          = "SIMID:Media:pause"
	MediaPlay           = "SIMID:Media:play"
	MediaTimeUpdate     = "SIMID:Media:timeupdate"
	MediaVolumeChange   = "SIMID:Media:volumechange"
)

// Requests sent by the creative.
const (
	CreativeClickThru             = "SIMID:Creative:clickThru"
	CreativeFatalError            = "SIMID:Creative:fatalError"
	CreativeGetMediaState         = "SIMID:Creative:getMediaState"
	CreativeLog                   = "SIMID:Creative:log"
	CreativeReportTracking        = "SIMID:Creative:reportTracking"
	CreativeRequestExitFullscreen = "SIMID:Creative:requestExitFullscreen"
	CreativeRequestFullscreen     = "SIMID:Creative:requestFullscreen"
	CreativeRequestNavigation     = "SIMID:Creative:requestNavigation"
	CreativeRequestPause          = "SIMID:Creative:requestPause"
	CreativeRequestPlay           = "SIMID:Creative:requestPlay"
	CreativeRequestResize         = "SIMID:Creative:requestResize"
	CreativeRequestSkip           = "SIMID:Creative:requestSkip"
	CreativeRequestStop           = "SIMID:Creative:requestStop"
)

// Message is the SIMID envelope.
type Message struct {
	SessionID string         `json:"sessionId" mapstructure:"sessionId"`
	MessageID int            `json:"messageId" mapstructure:"messageId"`
	Timestamp int64          `json:"timestamp" mapstructure:"timestamp"`
	Type      string         `json:"type" mapstructure:"type"`
	Args      map[string]any `json:"args,omitempty" mapstructure:"args"`
}

var requiredKeys = []string{"sessionId", "messageId", "timestamp", "type"}

// CreateSessionID returns a new random session id.
func CreateSessionID() string {
	return uuid.NewString()
}

// NewMessage builds an envelope stamped with the current time.
func NewMessage(sessionID string, messageID int, typ string, args map[string]any) *Message {
	return &Message{
		SessionID: sessionID,
		MessageID: messageID,
		Timestamp: time.Now().UnixMilli(),
		Type:      typ,
		Args:      args,
	}
}

// ParseMessage validates an untrusted incoming message. It accepts a decoded
// object, a JSON document as []byte or string, or a *Message, and returns nil
// for anything structurally invalid.
func ParseMessage(raw any) (msg *Message) {
	defer func() {
		if recover() != nil {
			msg = nil
		}
	}()

	var obj map[string]any
	switch v := raw.(type) {
	case *Message:
		if v == nil || v.SessionID == "" || v.Type == "" {
			return nil
		}
		cp := *v
		return &cp
	case map[string]any:
		obj = v
	case []byte:
		if json.Unmarshal(v, &obj) != nil {
			return nil
		}
	case string:
		if json.Unmarshal([]byte(v), &obj) != nil {
			return nil
		}
	default:
		return nil
	}
	if obj == nil {
		return nil
	}
	for _, key := range requiredKeys {
		if _, ok := obj[key]; !ok {
			return nil
		}
	}

	var m Message
	if err := decode(obj, &m); err != nil {
		return nil
	}
	if m.SessionID == "" || m.Type == "" {
		return nil
	}
	return &m
}

// decode strictly maps an untrusted object onto out. Type mismatches are
// errors; unknown keys are ignored.
func decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
