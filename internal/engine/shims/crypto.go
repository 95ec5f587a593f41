package shims

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	maxRandomBytes = 65536
	maxIterations  = 10_000_000
	maxKeyLength   = 1024
)

// Crypto exposes hashing and randomness. Binary values cross the boundary
// as standard base64.
type Crypto struct{}

// RandomBytes returns n cryptographically random bytes
func (Crypto) RandomBytes(n int) (string, error) {
	if n < 0 || n > maxRandomBytes {
		return "", fmt.Errorf("randomBytes: length %d out of range", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("randomBytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// RandomUUID returns a version 4 UUID string
func (Crypto) RandomUUID() string {
	return uuid.NewString()
}

func (Crypto) Sha256(data string) (string, error) {
	raw, err := decodeB64("sha256", data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func (Crypto) Sha512(data string) (string, error) {
	raw, err := decodeB64("sha512", data)
	if err != nil {
		return "", err
	}
	sum := sha512.Sum512(raw)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func (Crypto) HmacSha512(key, data string) (string, error) {
	k, err := decodeB64("hmacSha512", key)
	if err != nil {
		return "", err
	}
	d, err := decodeB64("hmacSha512", data)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, k)
	mac.Write(d)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Pbkdf2Sha512 derives a key. iterations and keyLen arrive as decimal
// strings.
func (Crypto) Pbkdf2Sha512(password, salt, iterations, keyLen string) (string, error) {
	pw, err := decodeB64("pbkdf2Sha512", password)
	if err != nil {
		return "", err
	}
	s, err := decodeB64("pbkdf2Sha512", salt)
	if err != nil {
		return "", err
	}
	iter, err := strconv.Atoi(iterations)
	if err != nil || iter < 1 || iter > maxIterations {
		return "", fmt.Errorf("pbkdf2Sha512: invalid iterations %q", iterations)
	}
	n, err := strconv.Atoi(keyLen)
	if err != nil || n < 1 || n > maxKeyLength {
		return "", fmt.Errorf("pbkdf2Sha512: invalid key length %q", keyLen)
	}
	key := pbkdf2.Key(pw, s, iter, n, sha512.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeB64(op, s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64 input: %w", op, err)
	}
	return raw, nil
}
