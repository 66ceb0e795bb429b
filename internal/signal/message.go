// Package signal defines the event surface exchanged between participants and
// the relay, plus the Link abstraction used to carry it. Every event on the
// wire is one concrete Message variant; decoding is exhaustive and rejects
// unknown event names.
package signal

// Type is the wire name of a signaling event.
type Type string

const (
	TypeRegisterClient       Type = "register-client"
	TypeRegisterAdmin        Type = "register-admin"
	TypeCurrentClients       Type = "current-clients"
	TypeCurrentAdmins        Type = "current-admins"
	TypeNewClient            Type = "new-client"
	TypeNewAdmin             Type = "new-admin"
	TypeClientDisconnected   Type = "client-disconnected"
	TypeAdminDisconnected    Type = "admin-disconnected"
	TypeCallRequest          Type = "call-request"
	TypeIncomingCall         Type = "incoming-call"
	TypeAcceptCall           Type = "accept-call"
	TypeCallAccepted         Type = "call-accepted"
	TypeCancelCallRequest    Type = "cancel-call-request"
	TypeCallRequestCancelled Type = "call-request-cancelled"
	TypeCallTimeout          Type = "call-timeout"
	TypeOffer                Type = "offer"
	TypeAnswer               Type = "answer"
	TypeICECandidate         Type = "ice-candidate"
	TypeEndCall              Type = "end-call"
	TypeCallEnded            Type = "call-ended"
	TypeAdminCallAdmin       Type = "admin-call-admin"
	TypeAdminCallSent        Type = "admin-call-sent"
	TypeIncomingAdminCall    Type = "incoming-admin-call"
	TypeAcceptAdminCall      Type = "accept-admin-call"
	TypeRejectAdminCall      Type = "reject-admin-call"
	TypeAdminCallAccepted    Type = "admin-call-accepted"
	TypeAdminCallRejected    Type = "admin-call-rejected"
	TypeAdminCallTimeout     Type = "admin-call-timeout"
	TypeAdminBusy            Type = "admin-busy"
	TypeAdminNotFound        Type = "admin-not-found"
)

// CallType distinguishes audio-only calls from audio+video calls.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// Message is one signaling event. The concrete type carries the payload.
type Message interface {
	Type() Type
}

// ClientProfile is the customer-supplied registration profile.
type ClientProfile struct {
	SessionID string `json:"sessionId,omitempty"`
	Name      string `json:"name" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
}

// AdminProfile is the admin-supplied registration profile.
type AdminProfile struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Name        string `json:"name" validate:"required"`
}

// ClientInfo is a roster entry for a connected customer.
type ClientInfo struct {
	SocketID string        `json:"socketId"`
	UserData ClientProfile `json:"userData"`
}

// AdminInfo is a roster entry for a connected admin.
type AdminInfo struct {
	SocketID    string `json:"socketId"`
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
}

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidateInit is one ICE candidate as exchanged on the wire.
type CandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type RegisterClient struct {
	ClientProfile
}

type RegisterAdmin struct {
	AdminProfile
}

type CurrentClients struct {
	Clients []ClientInfo `json:"clients"`
}

type CurrentAdmins struct {
	Admins []AdminInfo `json:"admins"`
}

type NewClient struct {
	ClientInfo
}

type NewAdmin struct {
	AdminInfo
}

type ClientDisconnected struct {
	SocketID string `json:"socketId"`
}

type AdminDisconnected struct {
	SocketID string `json:"socketId"`
}

// CallRequest is a customer asking for any available admin.
type CallRequest struct {
	CallType CallType `json:"callType"`
}

// IncomingCall notifies an admin that a customer is calling.
type IncomingCall struct {
	SocketID string        `json:"socketId"`
	UserData ClientProfile `json:"userData"`
	CallType CallType      `json:"callType"`
}

// AcceptCall is an admin taking a customer's pending request.
type AcceptCall struct {
	ClientID string   `json:"clientId"`
	CallType CallType `json:"callType"`
}

// CallAccepted tells the customer which admin took the call.
type CallAccepted struct {
	AdminID  string   `json:"adminId"`
	CallType CallType `json:"callType"`
}

// CancelCallRequest is the customer withdrawing before anyone accepted.
type CancelCallRequest struct {
	CallType CallType `json:"callType"`
}

// CallRequestCancelled tells admins a pending request is gone.
type CallRequestCancelled struct {
	SocketID string   `json:"socketId"`
	CallType CallType `json:"callType"`
}

// CallTimeout reports that a dispatched request went unanswered.
type CallTimeout struct {
	SocketID string `json:"socketId"`
}

// Offer carries an SDP offer. Target is set by the sender, Source by the relay.
type Offer struct {
	Target   string             `json:"target,omitempty"`
	Source   string             `json:"source,omitempty"`
	Offer    SessionDescription `json:"offer"`
	CallType CallType           `json:"callType"`
}

// Answer carries an SDP answer. Target/Source as in Offer.
type Answer struct {
	Target   string             `json:"target,omitempty"`
	Source   string             `json:"source,omitempty"`
	Answer   SessionDescription `json:"answer"`
	CallType CallType           `json:"callType"`
}

// ICECandidate carries one trickled candidate. Target/Source as in Offer.
type ICECandidate struct {
	Target    string        `json:"target,omitempty"`
	Source    string        `json:"source,omitempty"`
	Candidate CandidateInit `json:"candidate"`
}

// EndCall hangs up on a specific peer.
type EndCall struct {
	TargetID string `json:"targetId"`
}

// CallEnded notifies a peer that the other side hung up.
type CallEnded struct {
	Source  string `json:"source"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
}

// AdminCallAdmin initiates an admin-to-admin call by phone number.
type AdminCallAdmin struct {
	TargetAdminPhone string   `json:"targetAdminPhone"`
	CallType         CallType `json:"callType"`
}

// AdminCallSent acknowledges that the target admin was reached.
type AdminCallSent struct {
	TargetAdminID string `json:"targetAdminId"`
	PhoneNumber   string `json:"phoneNumber"`
}

// IncomingAdminCall notifies an admin that another admin is calling.
type IncomingAdminCall struct {
	SocketID  string       `json:"socketId"`
	AdminData AdminProfile `json:"adminData"`
	CallType  CallType     `json:"callType"`
}

type AcceptAdminCall struct {
	AdminID  string   `json:"adminId"`
	CallType CallType `json:"callType"`
}

type RejectAdminCall struct {
	AdminID string `json:"adminId"`
}

type AdminCallAccepted struct {
	AdminID  string   `json:"adminId"`
	CallType CallType `json:"callType"`
}

type AdminCallRejected struct {
	AdminID string `json:"adminId"`
}

// AdminCallTimeout flows both ways: the caller reports a timeout naming the
// target; the relay forwards it to the target naming the caller.
type AdminCallTimeout struct {
	TargetAdminID string `json:"targetAdminId,omitempty"`
	AdminID       string `json:"adminId,omitempty"`
}

type AdminBusy struct {
	TargetAdminID string `json:"targetAdminId"`
	AdminName     string `json:"adminName"`
}

type AdminNotFound struct {
	PhoneNumber string `json:"phoneNumber"`
}

func (RegisterClient) Type() Type       { return TypeRegisterClient }
func (RegisterAdmin) Type() Type        { return TypeRegisterAdmin }
func (CurrentClients) Type() Type       { return TypeCurrentClients }
func (CurrentAdmins) Type() Type        { return TypeCurrentAdmins }
func (NewClient) Type() Type            { return TypeNewClient }
func (NewAdmin) Type() Type             { return TypeNewAdmin }
func (ClientDisconnected) Type() Type   { return TypeClientDisconnected }
func (AdminDisconnected) Type() Type    { return TypeAdminDisconnected }
func (CallRequest) Type() Type          { return TypeCallRequest }
func (IncomingCall) Type() Type         { return TypeIncomingCall }
func (AcceptCall) Type() Type           { return TypeAcceptCall }
func (CallAccepted) Type() Type         { return TypeCallAccepted }
func (CancelCallRequest) Type() Type    { return TypeCancelCallRequest }
func (CallRequestCancelled) Type() Type { return TypeCallRequestCancelled }
func (CallTimeout) Type() Type          { return TypeCallTimeout }
func (Offer) Type() Type                { return TypeOffer }
func (Answer) Type() Type               { return TypeAnswer }
func (ICECandidate) Type() Type         { return TypeICECandidate }
func (EndCall) Type() Type              { return TypeEndCall }
func (CallEnded) Type() Type            { return TypeCallEnded }
func (AdminCallAdmin) Type() Type       { return TypeAdminCallAdmin }
func (AdminCallSent) Type() Type        { return TypeAdminCallSent }
func (IncomingAdminCall) Type() Type    { return TypeIncomingAdminCall }
func (AcceptAdminCall) Type() Type      { return TypeAcceptAdminCall }
func (RejectAdminCall) Type() Type      { return TypeRejectAdminCall }
func (AdminCallAccepted) Type() Type    { return TypeAdminCallAccepted }
func (AdminCallRejected) Type() Type    { return TypeAdminCallRejected }
func (AdminCallTimeout) Type() Type     { return TypeAdminCallTimeout }
func (AdminBusy) Type() Type            { return TypeAdminBusy }
func (AdminNotFound) Type() Type        { return TypeAdminNotFound }
