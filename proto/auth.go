package proto

import (
	"encoding/binary"
	"fmt"
)

// MsgTypeAuth is the outer header's message type for the small
// authenticate exchange: send an authenticate frame, parse the
// response code, proceed on 0 or fail with an application error
// otherwise. The exact credential hashing scheme is an external
// collaborator's concern; this just frames the two fields the core
// needs to exchange.
const MsgTypeAuth = 0

// WriteAuthRequest encodes an authenticate request into buf, returning
// the total length written. buf must be at least
// AuthRequestSize(user, credential) bytes.
func WriteAuthRequest(buf []byte, user, credential string) int {
	userB := []byte(user)
	credB := []byte(credential)
	bodyLen := FieldSize(len(userB)) + FieldSize(len(credB))
	sizeAndType := (uint64(Version) << 56) | (uint64(MsgTypeAuth) << 48) | uint64(bodyLen)
	binary.BigEndian.PutUint64(buf[0:8], sizeAndType)
	off := HeaderSize
	off = WriteField(buf, off, FieldUDFPackageName, userB)
	off = WriteField(buf, off, FieldUDFArgList, credB)
	return off
}

// AuthRequestSize returns the total frame size WriteAuthRequest needs.
func AuthRequestSize(user, credential string) int {
	return HeaderSize + FieldSize(len(user)) + FieldSize(len(credential))
}

// AuthResponseSize is the fixed size of an authenticate response: the
// 8-byte outer header plus a 1-byte result code.
const AuthResponseSize = HeaderSize + 1

// ParseAuthResponse reads the result code out of a full
// AuthResponseSize-byte authenticate response buffer.
func ParseAuthResponse(buf []byte) (resultCode int, err error) {
	if len(buf) < AuthResponseSize {
		return 0, fmt.Errorf("proto: short auth response (%d bytes)", len(buf))
	}
	return int(buf[HeaderSize]), nil
}
