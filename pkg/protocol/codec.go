package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "coauthor-backend/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// Envelope is the wire frame.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound messages, keyed by the tag a client sends them under.
var inbound = map[EventType]func() any{
	JoinDocument:      func() any { return &JoinDocumentMessage{} },
	SectionChange:     func() any { return &SectionChangeMessage{} },
	CursorSelection:   func() any { return &CursorSelectionMessage{} },
	WholeDocumentSave: func() any { return &WholeDocumentSaveMessage{} },
	LeaveDocument:     func() any { return &LeaveDocumentMessage{} },
	JoinGraph:         func() any { return &JoinGraphMessage{} },
	LeaveGraph:        func() any { return &LeaveGraphMessage{} },
	NodeSelected:      func() any { return &NodeSelectedMessage{} },
	GraphUpdate:       func() any { return &GraphUpdateMessage{} },
}

// outbound lists the messages the server sends, for client-side decoding.
var outbound = map[EventType]func() any{
	LoadDocument:           func() any { return &LoadDocumentMessage{} },
	LoadDocumentBroadcast:  func() any { return &LoadDocumentMessage{} },
	UpdateParticipants:     func() any { return &UpdateParticipantsMessage{} },
	SectionChangeBroadcast: func() any { return &SectionChangeBroadcastMessage{} },
	RemoteCursor:           func() any { return &RemoteCursorMessage{} },
	LoadGraph:              func() any { return &LoadGraphMessage{} },
	NodeSelected:           func() any { return &NodeSelectedMessage{} },
	GraphUpdate:            func() any { return &GraphUpdateMessage{} },
	Error:                  func() any { return &ErrorMessage{} },
}

var validate = validator.New()

// IsInbound reports whether t is an event clients may send.
func IsInbound(t EventType) bool {
	_, ok := inbound[t]
	return ok
}

// Encode wraps payload in an envelope.
func Encode(t EventType, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: body})
}

// Decode parses a client frame into its typed, validated message. The event
// type is returned even when the payload is rejected so the caller can name
// it in the error reply.
func Decode(data []byte) (EventType, any, error) {
	return decode(data, inbound, true)
}

// DecodeServer parses a server frame. Server payloads are trusted and not
// validated.
func DecodeServer(data []byte) (EventType, any, error) {
	return decode(data, outbound, false)
}

func decode(data []byte, registry map[EventType]func() any, check bool) (EventType, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, apperrors.NewValidationError("malformed envelope: " + err.Error())
	}
	factory, ok := registry[env.Type]
	if !ok {
		return env.Type, nil, apperrors.NewValidationError(fmt.Sprintf("unknown event type %q", env.Type))
	}

	msg := factory()
	payload := env.Payload
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return env.Type, nil, apperrors.NewValidationError(fmt.Sprintf("invalid %s payload: %v", env.Type, err))
	}
	if check {
		if err := ValidateStruct(msg); err != nil {
			return env.Type, nil, err
		}
	}
	return env.Type, msg, nil
}

// ValidateStruct checks validate tags and reports every failing field.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewValidationError(err.Error())
	}
	messages := make([]string, 0, len(validationErrors))
	fields := make(map[string]interface{}, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
		fields[e.Namespace()] = e.Tag()
	}
	return apperrors.NewValidationError(strings.Join(messages, "; ")).WithDetails(fields)
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
