package domain

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/gosimple/slug"
)

const (
	InviteCodeLen      = 6
	inviteCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewInviteCode returns a random 6-character upper-case base-36 code.
func NewInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(InviteCodeLen)
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := 0; i < InviteCodeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode upper-cases and trims a code typed by a user.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Slugify derives the lowercase, dash-separated form of a project name.
func Slugify(name string) string {
	return slug.Make(name)
}
