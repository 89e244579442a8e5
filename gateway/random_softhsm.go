//go:build softhsm

package gateway

import (
	"fmt"

	"github.com/alovak/paytrust/internal/security"
	"github.com/alovak/paytrust/internal/security/hsm"
	"golang.org/x/exp/slog"
)

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func (a *App) randomSource() (security.RandomSource, error) {
	if a.config.PKCS11Lib == "" {
		return security.CryptoRandom{}, nil
	}

	random := hsm.New(hsm.Config{
		LibPath: a.config.PKCS11Lib,
		SlotID:  a.config.PKCS11Slot,
		PIN:     a.config.PKCS11PIN,
	})
	if err := random.Open(); err != nil {
		return nil, fmt.Errorf("opening hsm: %w", err)
	}
	a.closers = append(a.closers, closerFunc(random.Close))
	a.logger.Info("identifiers drawn from hsm", slog.Uint64("slot", uint64(a.config.PKCS11Slot)))

	return random, nil
}
