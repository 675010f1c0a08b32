package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalSigner_MintParseRoundtrip(t *testing.T) {
	req := require.New(t)
	signer := NewLocalSigner("dev_secret", "staychat", time.Hour)

	token, err := signer.Mint("guest-1")
	req.NoError(err)

	claims, err := signer.Parse(token)
	req.NoError(err)
	req.Equal("guest-1", claims.UserID)
	req.Equal("staychat", claims.Issuer)
	req.True(claims.ExpiresAt.After(time.Now()))
}

func TestLocalSigner_RejectsForeignSignature(t *testing.T) {
	req := require.New(t)
	theirs := NewLocalSigner("their_secret", "staychat", time.Hour)
	ours := NewLocalSigner("dev_secret", "staychat", time.Hour)

	token, err := theirs.Mint("guest-1")
	req.NoError(err)

	_, err = ours.Parse(token)
	req.Error(err)
}

func TestLocalSigner_RejectsExpiredToken(t *testing.T) {
	req := require.New(t)
	signer := NewLocalSigner("dev_secret", "staychat", -time.Hour)

	token, err := signer.Mint("guest-1")
	req.NoError(err)

	_, err = signer.Parse(token)
	req.Error(err)
}

func TestParticipantSource_MintsFreshTokens(t *testing.T) {
	req := require.New(t)
	signer := NewLocalSigner("dev_secret", "staychat", time.Hour)
	tokens := NewParticipantSource(signer, "guest-1")

	token, err := tokens.Token()
	req.NoError(err)

	claims, err := signer.Parse(token)
	req.NoError(err)
	req.Equal("guest-1", claims.UserID)
}

func TestStaticToken_ReturnsLiteral(t *testing.T) {
	req := require.New(t)
	token, err := StaticToken("opaque-token").Token()
	req.NoError(err)
	req.Equal("opaque-token", token)
}
