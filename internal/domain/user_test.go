package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCallerInfoSanitize(t *testing.T) {
	c := CallerInfo{ID: "u1", DisplayName: "  " + strings.Repeat("é", MaxUsernameLen+7) + "  "}
	got := c.Sanitize()
	assert.True(t, utf8.ValidString(got.DisplayName))
	assert.Equal(t, MaxUsernameLen, utf8.RuneCountInString(got.DisplayName))
	assert.Equal(t, UserID("u1"), got.ID)

	short := CallerInfo{ID: "u2", DisplayName: " Zoë "}.Sanitize()
	assert.Equal(t, "Zoë", short.DisplayName)
}
