package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/pmboard/pkg/cryptox"
	"github.com/aussiebroadwan/pmboard/pkg/idx"
	"github.com/aussiebroadwan/pmboard/pkg/jwtx"
)

// initSigningKey loads the Ed25519 key from cfg.SigningKeyFile, or generates
// an ephemeral one. With an ephemeral key every restart invalidates issued
// access tokens, which is a handy way to exercise client-side refresh.
func initSigningKey(cfg Config, logger *slog.Logger) (*jwtx.EdDSASigner, *jwtx.EdDSAVerifier, error) {
	var (
		pemKey []byte
		kid    string
		err    error
	)

	if cfg.SigningKeyFile != "" {
		pemKey, err = os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read signing key: %w", err)
		}
		kid = "file-" + cryptox.FingerprintToken(string(pemKey))[:8]
		logger.Info("loaded signing key", "path", cfg.SigningKeyFile, "kid", kid)
	} else {
		pemKey, err = cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, nil, fmt.Errorf("generate signing key: %w", err)
		}
		kid = idx.New().String()
		logger.Warn("generated ephemeral signing key; access tokens will not survive a restart", "kid", kid)
	}

	signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
	if err != nil {
		return nil, nil, err
	}

	verifier := jwtx.NewVerifierEdDSA(cfg.Issuer, 0)
	verifier.AddKey(signer.KID(), signer.PublicKey())

	return signer, verifier, nil
}
