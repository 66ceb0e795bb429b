package signal

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire framing: an event name plus its payload.
type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames a message for the wire.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Type(), err)
	}
	return json.Marshal(envelope{Type: msg.Type(), Payload: payload})
}

// Decode parses a framed message. Unknown event names are an error so that a
// peer speaking a newer protocol fails loudly instead of being half-understood.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	msg, err := emptyMessage(env.Type)
	if err != nil {
		return nil, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return deref(msg), nil
}

// emptyMessage returns a pointer to a zero value of the variant for env.Type.
func emptyMessage(t Type) (Message, error) {
	switch t {
	case TypeRegisterClient:
		return &RegisterClient{}, nil
	case TypeRegisterAdmin:
		return &RegisterAdmin{}, nil
	case TypeCurrentClients:
		return &CurrentClients{}, nil
	case TypeCurrentAdmins:
		return &CurrentAdmins{}, nil
	case TypeNewClient:
		return &NewClient{}, nil
	case TypeNewAdmin:
		return &NewAdmin{}, nil
	case TypeClientDisconnected:
		return &ClientDisconnected{}, nil
	case TypeAdminDisconnected:
		return &AdminDisconnected{}, nil
	case TypeCallRequest:
		return &CallRequest{}, nil
	case TypeIncomingCall:
		return &IncomingCall{}, nil
	case TypeAcceptCall:
		return &AcceptCall{}, nil
	case TypeCallAccepted:
		return &CallAccepted{}, nil
	case TypeCancelCallRequest:
		return &CancelCallRequest{}, nil
	case TypeCallRequestCancelled:
		return &CallRequestCancelled{}, nil
	case TypeCallTimeout:
		return &CallTimeout{}, nil
	case TypeOffer:
		return &Offer{}, nil
	case TypeAnswer:
		return &Answer{}, nil
	case TypeICECandidate:
		return &ICECandidate{}, nil
	case TypeEndCall:
		return &EndCall{}, nil
	case TypeCallEnded:
		return &CallEnded{}, nil
	case TypeAdminCallAdmin:
		return &AdminCallAdmin{}, nil
	case TypeAdminCallSent:
		return &AdminCallSent{}, nil
	case TypeIncomingAdminCall:
		return &IncomingAdminCall{}, nil
	case TypeAcceptAdminCall:
		return &AcceptAdminCall{}, nil
	case TypeRejectAdminCall:
		return &RejectAdminCall{}, nil
	case TypeAdminCallAccepted:
		return &AdminCallAccepted{}, nil
	case TypeAdminCallRejected:
		return &AdminCallRejected{}, nil
	case TypeAdminCallTimeout:
		return &AdminCallTimeout{}, nil
	case TypeAdminBusy:
		return &AdminBusy{}, nil
	case TypeAdminNotFound:
		return &AdminNotFound{}, nil
	default:
		return nil, fmt.Errorf("unknown signaling event %q", t)
	}
}

// deref unwraps the pointer produced by emptyMessage so callers can type-switch
// on value types.
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *RegisterClient:
		return *m
	case *RegisterAdmin:
		return *m
	case *CurrentClients:
		return *m
	case *CurrentAdmins:
		return *m
	case *NewClient:
		return *m
	case *NewAdmin:
		return *m
	case *ClientDisconnected:
		return *m
	case *AdminDisconnected:
		return *m
	case *CallRequest:
		return *m
	case *IncomingCall:
		return *m
	case *AcceptCall:
		return *m
	case *CallAccepted:
		return *m
	case *CancelCallRequest:
		return *m
	case *CallRequestCancelled:
		return *m
	case *CallTimeout:
		return *m
	case *Offer:
		return *m
	case *Answer:
		return *m
	case *ICECandidate:
		return *m
	case *EndCall:
		return *m
	case *CallEnded:
		return *m
	case *AdminCallAdmin:
		return *m
	case *AdminCallSent:
		return *m
	case *IncomingAdminCall:
		return *m
	case *AcceptAdminCall:
		return *m
	case *RejectAdminCall:
		return *m
	case *AdminCallAccepted:
		return *m
	case *AdminCallRejected:
		return *m
	case *AdminCallTimeout:
		return *m
	case *AdminBusy:
		return *m
	case *AdminNotFound:
		return *m
	default:
		return msg
	}
}
