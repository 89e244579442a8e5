//go:build softhsm

// Package hsm draws random bytes from a PKCS#11 token (SoftHSM in
// development). Built only with the softhsm tag so default builds do not
// need the pkcs11 shared library.
package hsm

import (
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/alovak/paytrust/internal/security"
)

type Config struct {
	LibPath string
	SlotID  uint
	PIN     string
}

// Random implements security.RandomSource with C_GenerateRandom.
type Random struct {
	cfg  Config
	mu   sync.Mutex
	p11  *pkcs11.Ctx
	sess pkcs11.SessionHandle
}

func New(cfg Config) *Random {
	return &Random{cfg: cfg}
}

func (r *Random) Open() error {
	r.p11 = pkcs11.New(r.cfg.LibPath)
	if r.p11 == nil {
		return fmt.Errorf("loading pkcs11 library %s", r.cfg.LibPath)
	}
	if err := r.p11.Initialize(); err != nil {
		return fmt.Errorf("initializing pkcs11: %w", err)
	}
	sess, err := r.p11.OpenSession(r.cfg.SlotID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		_ = r.p11.Finalize()
		return fmt.Errorf("opening pkcs11 session: %w", err)
	}
	r.sess = sess
	if r.cfg.PIN != "" {
		if err := r.p11.Login(r.sess, pkcs11.CKU_USER, r.cfg.PIN); err != nil {
			_ = r.p11.CloseSession(r.sess)
			_ = r.p11.Finalize()
			return fmt.Errorf("pkcs11 login: %w", err)
		}
	}
	return nil
}

func (r *Random) Close() {
	if r.p11 == nil {
		return
	}
	if r.sess != 0 {
		if r.cfg.PIN != "" {
			_ = r.p11.Logout(r.sess)
		}
		_ = r.p11.CloseSession(r.sess)
	}
	_ = r.p11.Finalize()
	r.p11.Destroy()
	r.p11 = nil
}

func (r *Random) Random(n int) ([]byte, error) {
	// a pkcs11 session is not safe for concurrent use
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.p11 == nil {
		return nil, fmt.Errorf("hsm is not open")
	}
	b, err := r.p11.GenerateRandom(r.sess, n)
	if err != nil {
		return nil, fmt.Errorf("generating random: %w", err)
	}
	return b, nil
}

var _ security.RandomSource = (*Random)(nil)
