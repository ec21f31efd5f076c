// Package auth implements the RFB security handshake: security-type
// negotiation, VNC challenge-response authentication, and the Apple Remote
// Desktop Diffie-Hellman scheme (security type 30).
package auth

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SecurityType is an RFB security type identifier.
type SecurityType uint8

const (
	SecurityTypeInvalid            SecurityType = 0
	SecurityTypeNone               SecurityType = 1
	SecurityTypeVNCAuth            SecurityType = 2
	SecurityTypeTight              SecurityType = 16
	SecurityTypeVeNCrypt           SecurityType = 19
	SecurityTypeAppleRemoteDesktop SecurityType = 30
)

func (t SecurityType) String() string {
	switch t {
	case SecurityTypeNone:
		return "None"
	case SecurityTypeVNCAuth:
		return "VNC Authentication"
	case SecurityTypeTight:
		return "Tight"
	case SecurityTypeVeNCrypt:
		return "VeNCrypt"
	case SecurityTypeAppleRemoteDesktop:
		return "Apple Remote Desktop"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

var (
	// ErrProtocolViolation indicates an auth message that breaks its
	// fixed-size wire contract. Fatal to the handshake.
	ErrProtocolViolation = errors.New("auth: protocol violation")

	// ErrAuthFailed indicates the server rejected the credentials or a
	// degenerate parameter set was detected. Fatal to the handshake.
	ErrAuthFailed = errors.New("auth: authentication failed")

	// ErrTooManyAttempts is the server's "too many attempts" rejection.
	ErrTooManyAttempts = errors.New("auth: too many authentication attempts")
)

// FailedError carries the SecurityResult status and the server-supplied
// reason text when present. It matches ErrAuthFailed under errors.Is, and
// additionally ErrTooManyAttempts for status 2.
type FailedError struct {
	Status uint32
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("auth: authentication failed: %s", e.Reason)
}

func (e *FailedError) Is(target error) bool {
	if target == ErrAuthFailed {
		return true
	}
	return e.Status == 2 && target == ErrTooManyAttempts
}

// preferenceOrder ranks the security types this client can complete,
// strongest first.
var preferenceOrder = []SecurityType{
	SecurityTypeAppleRemoteDesktop,
	SecurityTypeVNCAuth,
	SecurityTypeNone,
	SecurityTypeTight,
	SecurityTypeVeNCrypt,
}

// SelectSecurityType picks the security type to answer with from the
// server's offered list. The returned bool is false only for an empty list.
// The selection message on the wire is the single byte of the chosen type.
func SelectSecurityType(offered []SecurityType) (SecurityType, bool) {
	if len(offered) == 0 {
		return SecurityTypeInvalid, false
	}

	for _, preferred := range preferenceOrder {
		for _, t := range offered {
			if t == preferred {
				return t, true
			}
		}
	}

	// Nothing we recognize: echo the server's first offer and let the
	// SecurityResult report the mismatch.
	return offered[0], true
}

// SecurityResult status values.
const (
	securityResultOK              = 0
	securityResultFailed          = 1
	securityResultTooManyAttempts = 2
)

// ParseSecurityResult interprets a SecurityResult message. It returns nil on
// success and a FailedError (with the server's reason text verbatim when the
// optional reason suffix is present) on rejection.
func ParseSecurityResult(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: security result needs 4 bytes, have %d", ErrProtocolViolation, len(data))
	}

	status := binary.BigEndian.Uint32(data[:4])
	switch status {
	case securityResultOK:
		return nil

	case securityResultFailed:
		reason := "authentication failed"
		if len(data) >= 8 {
			reasonLen := binary.BigEndian.Uint32(data[4:8])
			if int(reasonLen) <= len(data)-8 {
				reason = string(data[8 : 8+reasonLen])
			}
		}
		return &FailedError{Status: status, Reason: reason}

	case securityResultTooManyAttempts:
		return &FailedError{Status: status, Reason: "too many attempts"}

	default:
		return fmt.Errorf("%w: unknown security result status %d", ErrAuthFailed, status)
	}
}
