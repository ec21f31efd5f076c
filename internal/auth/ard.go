package auth

import (
	"crypto/aes"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
)

// ardCredentialLen is the size of the plaintext credential block: two
// 64-byte NUL-terminated fields, username then password.
const ardCredentialLen = 128

// ARDServerParams holds the Diffie-Hellman parameters sent by an Apple
// Remote Desktop server after security type 30 is selected.
type ARDServerParams struct {
	Generator       uint16
	KeyLength       uint16
	Prime           []byte
	ServerPublicKey []byte
}

// ARDResponse is the client's reply: the encrypted credential block followed
// on the wire by the client's public key, which is exactly KeyLength bytes.
type ARDResponse struct {
	Ciphertext      [ardCredentialLen]byte
	ClientPublicKey []byte
}

// ParseARDServerParams decodes the server's parameter message: generator
// (u16), key length (u16), then the prime and the server public key, each
// key-length bytes, all big-endian.
func ParseARDServerParams(data []byte) (*ARDServerParams, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: ARD parameter header needs 4 bytes, have %d",
			ErrProtocolViolation, len(data))
	}

	params := &ARDServerParams{
		Generator: binary.BigEndian.Uint16(data[0:2]),
		KeyLength: binary.BigEndian.Uint16(data[2:4]),
	}

	need := 4 + 2*int(params.KeyLength)
	if len(data) < need {
		return nil, fmt.Errorf("%w: ARD parameters truncated, need %d bytes, have %d",
			ErrProtocolViolation, need, len(data))
	}

	keyLen := int(params.KeyLength)
	params.Prime = append([]byte(nil), data[4:4+keyLen]...)
	params.ServerPublicKey = append([]byte(nil), data[4+keyLen:need]...)
	return params, nil
}

// ARDAuthenticate performs the client side of the ARD key agreement and
// credential encryption. The AES-128 key is the MD5 digest of the shared
// Diffie-Hellman secret, left-padded with zeros to the server's key length.
// Unused credential bytes after each field's NUL terminator stay filled
// with random padding.
func ARDAuthenticate(params *ARDServerParams, username, password string) (*ARDResponse, error) {
	if params.KeyLength == 0 {
		return nil, fmt.Errorf("%w: ARD key length is zero", ErrAuthFailed)
	}

	prime := new(big.Int).SetBytes(params.Prime)
	if prime.Cmp(big.NewInt(1)) <= 0 {
		return nil, fmt.Errorf("%w: ARD prime modulus is degenerate", ErrAuthFailed)
	}

	keyLen := int(params.KeyLength)
	privBytes := make([]byte, keyLen)
	if _, err := rand.Read(privBytes); err != nil {
		return nil, fmt.Errorf("auth: generating ARD private key: %w", err)
	}
	priv := new(big.Int).SetBytes(privBytes)

	generator := big.NewInt(int64(params.Generator))
	serverPub := new(big.Int).SetBytes(params.ServerPublicKey)

	clientPub := new(big.Int).Exp(generator, priv, prime)
	shared := new(big.Int).Exp(serverPub, priv, prime)

	secret := shared.FillBytes(make([]byte, keyLen))
	aesKey := md5.Sum(secret)

	var credentials [ardCredentialLen]byte
	if _, err := rand.Read(credentials[:]); err != nil {
		return nil, fmt.Errorf("auth: generating ARD credential padding: %w", err)
	}
	setCredentialField(credentials[0:64], username)
	setCredentialField(credentials[64:128], password)

	block, err := aes.NewCipher(aesKey[:])
	if err != nil {
		return nil, fmt.Errorf("auth: AES key schedule: %w", err)
	}

	resp := &ARDResponse{
		ClientPublicKey: clientPub.FillBytes(make([]byte, keyLen)),
	}
	for i := 0; i < ardCredentialLen; i += aes.BlockSize {
		block.Encrypt(resp.Ciphertext[i:i+aes.BlockSize], credentials[i:i+aes.BlockSize])
	}
	return resp, nil
}

// setCredentialField writes value into dst with a NUL terminator, truncating
// to leave room for the terminator. Bytes past the terminator are untouched.
func setCredentialField(dst []byte, value string) {
	b := []byte(value)
	if len(b) > len(dst)-1 {
		b = b[:len(dst)-1]
	}
	copy(dst, b)
	dst[len(b)] = 0
}
