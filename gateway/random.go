//go:build !softhsm

package gateway

import "github.com/alovak/paytrust/internal/security"

func (a *App) randomSource() (security.RandomSource, error) {
	if a.config.PKCS11Lib != "" {
		a.logger.Warn("PKCS11_LIB is set but the binary was built without softhsm; using crypto/rand")
	}
	return security.CryptoRandom{}, nil
}
