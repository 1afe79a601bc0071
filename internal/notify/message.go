// Package notify carries visitor requests to the staff console over three
// redundant transports and collapses duplicate deliveries.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
)

type Type string

const (
	TypePaymentRequest   Type = "payment_request"
	TypeBigScreenRequest Type = "bigscreen_request"
	// Display commands ride the same surface for the big screen.
	TypeDisplayShow  Type = "display_show"
	TypeDisplayClear Type = "display_clear"
)

var ErrMalformedMessage = errors.New("malformed notification message")

func (t Type) IsRequest() bool {
	return t == TypePaymentRequest || t == TypeBigScreenRequest
}

func (t Type) valid() bool {
	switch t {
	case TypePaymentRequest, TypeBigScreenRequest, TypeDisplayShow, TypeDisplayClear:
		return true
	}
	return false
}

type Data struct {
	Code       string    `json:"code"`
	OwnerName  string    `json:"owner_name,omitempty"`
	PhotoCount int       `json:"photo_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is the wire schema shared by the push and broadcast transports.
type Message struct {
	Type Type `json:"type"`
	Data Data `json:"data"`
}

func NewRequestMessage(t Type, req models.VisitorRequest) Message {
	return Message{Type: t, Data: Data{
		Code:       req.Code,
		OwnerName:  req.OwnerName,
		PhotoCount: req.PhotoCount,
		CreatedAt:  req.CreatedAt,
	}}
}

func (m Message) Identity() Identity {
	return Identity{Type: m.Type, Code: m.Data.Code}
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes and validates a transport payload. Display clear
// commands are the only messages allowed without a code.
func ParseMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !m.Type.valid() {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
	m.Data.Code = strings.TrimSpace(m.Data.Code)
	if m.Data.Code == "" && m.Type != TypeDisplayClear {
		return Message{}, fmt.Errorf("%w: missing code", ErrMalformedMessage)
	}
	return m, nil
}

// Identity is the logical identity of a request event.
type Identity struct {
	Type Type
	Code string
}

func (i Identity) String() string {
	return string(i.Type) + ":" + i.Code
}

type Source string

const (
	SourcePoll      Source = "poll"
	SourceBroadcast Source = "broadcast"
	SourceSocket    Source = "socket"
)

// Delivery is one arrival of a message on one transport. Baseline deliveries
// come from the first poll and describe requests that predate the session.
// Withdrawn deliveries report a request the store no longer lists.
type Delivery struct {
	Message   Message
	Source    Source
	Baseline  bool
	Withdrawn bool
}
