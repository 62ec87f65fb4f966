package domain

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inviteCodePattern = regexp.MustCompile(`^[0-9A-Z]{6}$`)

func TestNewInviteCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewInviteCode()
		require.NoError(t, err)
		assert.Regexp(t, inviteCodePattern, code)
		seen[code] = true
	}
	// 36^6 codes; 200 draws colliding more than once would point at a broken source.
	assert.Greater(t, len(seen), 198)
}

func TestNormalizeInviteCode(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeInviteCode("  ab12cd "))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Launch":            "launch",
		"Q3 Roadmap Review": "q3-roadmap-review",
		"  Spaces  Around ": "spaces-around",
		"Ops/Infra Tools!":  "ops-infra-tools",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestProjectClone(t *testing.T) {
	p := &Project{ID: "p1", Members: []string{"m1"}}
	cp := p.Clone()
	cp.Members[0] = "changed"
	assert.Equal(t, "m1", p.Members[0])
	assert.True(t, p.HasMember("m1"))
	assert.False(t, p.HasMember("m2"))
}
