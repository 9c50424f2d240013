package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	cases := map[string]string{
		"05/03/2024":           "05/03/2024",
		"5/3/2024":             "05/03/2024",
		"2024-03-05":           "05/03/2024",
		"2024-3-9":             "09/03/2024",
		" 08/09/2024 ":         "08/09/2024",
		"2024-03-05T10:30:00Z": "05/03/2024",
		"31/02/2024":           "31/02/2024",
		"next tuesday":         "next tuesday",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Canonical(in), "input %q", in)
	}
}

func TestCanonicalIsFixedPoint(t *testing.T) {
	v := Format(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "01/12/2023", v)
	assert.Equal(t, v, Canonical(v))
}

func TestParseRejectsRollover(t *testing.T) {
	_, ok := Parse("30/02/2024")
	assert.False(t, ok)
	_, ok = Parse("2024-13-01")
	assert.False(t, ok)
}
