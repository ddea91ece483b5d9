package privacy

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"local number", "6282140044677", "*********4677"},
		{"plus prefix", "+6282140044677", "+*********4677"},
		{"short", "123", "***"},
		{"exactly four", "1234", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskPhoneNumber(tt.input))
		})
	}
}

func TestMaskChatID(t *testing.T) {
	assert.Equal(t, "*********4677@c.us", MaskChatID("6282140044677@c.us"))
	assert.Equal(t, "****@g.us", MaskChatID("1234@g.us"))
	assert.Equal(t, "*********4677", MaskChatID("6282140044677"))
	assert.Equal(t, "", MaskChatID(""))
}

func TestMaskTransportID(t *testing.T) {
	assert.Equal(t, "********abcdefgh", MaskTransportID("12345678abcdefgh"))
	assert.Equal(t, "****", MaskTransportID("abcd"))
}

func TestMaskName(t *testing.T) {
	assert.Equal(t, "D*** P******", MaskName("Dina Pratiwi"))
	assert.Equal(t, "", MaskName(""))
	assert.Equal(t, "Ö**", MaskName("Özi"))
}

func TestDescribeBody(t *testing.T) {
	assert.Equal(t, "<5 chars>", DescribeBody("halo!"))
}

func TestMaskFields(t *testing.T) {
	assert.Nil(t, MaskFields(nil))

	in := logrus.Fields{
		"recipient":      "6282140044677",
		"recipient_name": "Dina Pratiwi",
		"body":           "abc",
		"provider":       "wablas",
		"attempt":        3,
	}
	out := MaskFields(in)

	assert.Equal(t, "*********4677", out["recipient"])
	assert.Equal(t, "D*** P******", out["recipient_name"])
	assert.Equal(t, "<3 chars>", out["body"])
	assert.Equal(t, "wablas", out["provider"])
	assert.Equal(t, 3, out["attempt"])
	assert.Equal(t, "6282140044677", in["recipient"], "input must not be modified")
}
