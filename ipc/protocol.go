// Package ipc implements the client/server protocol for the hotkey
// server: length-prefixed JSON frames over a unix domain socket.
//
// The protocol is deliberately small. Clients send Requests (shutdown or
// a replace-all rebind) and receive Responses; the server additionally
// pushes asynchronous Triggered events whenever a registered hotkey
// fires, interleaved with request/response traffic on the same socket.
package ipc

import (
	"encoding/json"

	"github.com/cortesi/hotkey-manager/key"
)

// RequestType tags a Request.
type RequestType string

const (
	// RequestShutdown asks the server to shut down gracefully. In
	// single-client mode the server also shuts down when its client
	// disconnects without sending this.
	RequestShutdown RequestType = "shutdown"

	// RequestRebind replaces the full set of bound hotkeys. The
	// operation is atomic: if any key fails to register, the registry
	// is left empty.
	RequestRebind RequestType = "rebind"
)

// Request is a message sent client to server.
type Request struct {
	Type RequestType `json:"type"`
	// Keys carries the rebind key set; unused for other request types.
	Keys []key.Spec `json:"keys,omitempty"`
}

// ResponseType tags a Response.
type ResponseType string

const (
	// ResponseSuccess is a successful reply to a request.
	ResponseSuccess ResponseType = "success"

	// ResponseError is a failed reply to a request.
	ResponseError ResponseType = "error"

	// ResponseTriggered is an asynchronous event pushed when a
	// registered hotkey fires. It is not a reply to any request.
	ResponseTriggered ResponseType = "triggered"
)

// Response is a message sent server to client.
type Response struct {
	Type ResponseType `json:"type"`
	// Message is a human-readable status for success and error replies.
	Message string `json:"message,omitempty"`
	// Data is optional structured payload on success replies.
	Data json.RawMessage `json:"data,omitempty"`
	// Identifier names the hotkey that fired on triggered events.
	Identifier string `json:"identifier,omitempty"`
}

// Success builds a success response.
func Success(message string, data json.RawMessage) Response {
	return Response{Type: ResponseSuccess, Message: message, Data: data}
}

// Error builds an error response from a preformatted message.
func Error(message string) Response {
	return Response{Type: ResponseError, Message: message}
}

// Triggered builds a hotkey trigger event.
func Triggered(identifier string) Response {
	return Response{Type: ResponseTriggered, Identifier: identifier}
}
