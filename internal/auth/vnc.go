package auth

import (
	"crypto/des"
	"fmt"
)

// vncChallengeLen is the fixed VNC Authentication challenge size.
const vncChallengeLen = 16

// VNCAuthResponse computes the 16-byte response to a VNC Authentication
// challenge. The DES key is the password truncated or zero-padded to 8
// bytes, with the bits of each key byte reversed before scheduling; the two
// 8-byte challenge halves are encrypted independently in ECB mode. The
// challenge slice is not modified.
func VNCAuthResponse(password string, challenge []byte) ([]byte, error) {
	if len(challenge) != vncChallengeLen {
		return nil, fmt.Errorf("%w: VNC auth challenge must be %d bytes, have %d",
			ErrProtocolViolation, vncChallengeLen, len(challenge))
	}

	var key [8]byte
	copy(key[:], password)
	for i := range key {
		key[i] = reverseBits(key[i])
	}

	block, err := des.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("auth: DES key schedule: %w", err)
	}

	response := make([]byte, vncChallengeLen)
	block.Encrypt(response[:8], challenge[:8])
	block.Encrypt(response[8:], challenge[8:])
	return response, nil
}

// reverseBits mirrors the bit order of b. VNC's use of DES treats bit 0 as
// the most significant, the opposite of the DES key schedule convention.
func reverseBits(b byte) byte {
	b = (b&0xF0)>>4 | (b&0x0F)<<4
	b = (b&0xCC)>>2 | (b&0x33)<<2
	b = (b&0xAA)>>1 | (b&0x55)<<1
	return b
}
