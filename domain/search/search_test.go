package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQuery_TermsOnly(t *testing.T) {
	req := require.New(t)

	q := ParseQuery(`/find lost keys`)

	req.Equal("lost keys", q.Terms)
	req.Empty(q.ConversationID)
	req.Equal(10, q.Limit)
}

func TestParseQuery_QuotedTermsWithFlags(t *testing.T) {
	req := require.New(t)

	q := ParseQuery(`/find "missing keys" --conv bkg-42 --limit 5`)

	req.Equal("missing keys", q.Terms)
	req.Equal("bkg-42", q.ConversationID)
	req.Equal(5, q.Limit)
}

func TestParseQuery_IgnoresInvalidLimit(t *testing.T) {
	req := require.New(t)

	req.Equal(10, ParseQuery(`/find keys --limit abc`).Limit)
	req.Equal(10, ParseQuery(`/find keys --limit -3`).Limit)
}

func TestParseQuery_KeepsRawInput(t *testing.T) {
	req := require.New(t)
	input := `/find keys --conv bkg-42`

	req.Equal(input, ParseQuery(input).RawInput)
}
