package bot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandWord(t *testing.T) {
	testCases := []struct {
		text     string
		expected string
	}{
		{text: "/start", expected: "/start"},
		{text: "/start ref_R1", expected: "/start"},
		{text: "/start@some_bot ref_R1", expected: "/start"},
		{text: "  ", expected: ""},
		{text: "hello", expected: "hello"},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.expected, commandWord(tc.text), "text: %q", tc.text)
	}
}
