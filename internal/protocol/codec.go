package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("bad payload")
)

type frame struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode frames msg for the wire.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return json.Marshal(frame{Type: msg.Type(), Data: data})
}

// MustEncode is Encode for messages whose fields cannot fail to marshal.
func MustEncode(msg Message) []byte {
	b, err := Encode(msg)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses one wire frame into its concrete kind.
func Decode(raw []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var (
		msg Message
		err error
	)
	switch f.Type {
	case TypeWelcome:
		msg, err = decodeAs[Welcome](f.Data)
	case TypeJoin:
		msg, err = decodeAs[Join](f.Data)
	case TypeInit:
		msg, err = decodeAs[Init](f.Data)
	case TypeNewPlayer:
		msg, err = decodeAs[NewPlayer](f.Data)
	case TypePlayerMove:
		msg, err = decodeAs[PlayerMove](f.Data)
	case TypePlayerDisconnected:
		msg, err = decodeAs[PlayerDisconnected](f.Data)
	case TypeSignal:
		msg, err = decodeAs[Signal](f.Data)
	case TypeScreenSignal:
		msg, err = decodeAs[ScreenSignal](f.Data)
	case TypePing:
		return Ping{}, nil
	case TypePong:
		return Pong{}, nil
	case TypeError:
		msg, err = decodeAs[Error](f.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, f.Type, err)
	}
	return msg, nil
}

func decodeAs[T Message](data json.RawMessage) (Message, error) {
	var v T
	if len(data) == 0 {
		return nil, errors.New("missing data")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
