package util

import (
	"crypto/rand"
	"math/big"
)

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateInviteCode returns an n-character code without look-alike
// characters (0/O, 1/I).
func GenerateInviteCode(n int) (string, error) {
	if n <= 0 {
		n = 8
	}
	max := big.NewInt(int64(len(inviteAlphabet)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = inviteAlphabet[v.Int64()]
	}
	return string(b), nil
}
