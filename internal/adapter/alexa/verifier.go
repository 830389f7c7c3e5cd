package alexa

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/observability/telemetry"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

const (
	HeaderCertChainURL = "SignatureCertChainUrl"
	HeaderSignature    = "Signature-256"

	certHost       = "s3.amazonaws.com"
	certPathPrefix = "/echo.api/"
	certSAN        = "echo-api.amazon.com"

	certCachePrefix = "alexa:cert:"
	maxCertCacheTTL = 24 * time.Hour
	maxCertSize     = 64 << 10
)

var (
	ErrInvalidApplicationID = errors.New("application id not allowed")
	ErrStaleTimestamp       = errors.New("request timestamp outside tolerance")
	ErrMissingSignature     = errors.New("missing signature headers")
	ErrInvalidCertURL       = errors.New("invalid signature certificate url")
	ErrInvalidCertificate   = errors.New("invalid signing certificate")
	ErrInvalidSignature     = errors.New("invalid request signature")
)

// CertFetcher downloads the PEM certificate chain at url.
type CertFetcher func(ctx context.Context, url string) ([]byte, error)

type VerifierConfig struct {
	ApplicationIDs     []string
	VerifySignature    bool
	TimestampTolerance time.Duration
}

// Verifier checks that an inbound request really comes from Alexa and is
// addressed to this skill.
type Verifier struct {
	cfg   VerifierConfig
	cache ports.Cache
	fetch CertFetcher
	roots *x509.CertPool
	now   func() time.Time
	log   *zap.Logger
}

type VerifierOption func(*Verifier)

func WithCertFetcher(f CertFetcher) VerifierOption {
	return func(v *Verifier) { v.fetch = f }
}

// WithRoots replaces the system root pool used to verify the chain.
func WithRoots(roots *x509.CertPool) VerifierOption {
	return func(v *Verifier) { v.roots = roots }
}

func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier builds a verifier. cache may be nil, in which case every
// signed request downloads the certificate chain.
func NewVerifier(cfg VerifierConfig, cache ports.Cache, log *zap.Logger, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		cfg:   cfg,
		cache: cache,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.fetch == nil {
		v.fetch = HTTPCertFetcher(nil)
	}
	return v
}

// HTTPCertFetcher downloads certificates through client. A nil client gets
// a plain one with a short timeout.
func HTTPCertFetcher(client *circuitbreaker.HTTPClient) CertFetcher {
	return func(ctx context.Context, certURL string) ([]byte, error) {
		var (
			resp *http.Response
			err  error
		)
		if client != nil {
			resp, err = client.Get(ctx, certURL)
		} else {
			var req *http.Request
			req, err = http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
			if err != nil {
				return nil, err
			}
			resp, err = (&http.Client{Timeout: 5 * time.Second}).Do(req)
		}
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("certificate download: status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxCertSize))
	}
}

// Verify runs every enabled check. headers is consulted only when signature
// verification is on.
func (v *Verifier) Verify(ctx context.Context, headers http.Header, body []byte, env *RequestEnvelope) error {
	if err := v.checkApplicationID(env); err != nil {
		return v.fail("application_id", err)
	}
	if err := v.checkTimestamp(env); err != nil {
		return v.fail("timestamp", err)
	}
	if !v.cfg.VerifySignature {
		return nil
	}
	if err := v.checkSignature(ctx, headers.Get(HeaderCertChainURL), headers.Get(HeaderSignature), body); err != nil {
		return v.fail("signature", err)
	}
	return nil
}

func (v *Verifier) fail(reason string, err error) error {
	telemetry.VerificationFailuresTotal.WithLabelValues(reason).Inc()
	v.log.Warn("Alexa request verification failed", zap.String("reason", reason), zap.Error(err))
	return err
}

func (v *Verifier) checkApplicationID(env *RequestEnvelope) error {
	if len(v.cfg.ApplicationIDs) == 0 {
		return nil
	}
	id := env.ApplicationID()
	for _, allowed := range v.cfg.ApplicationIDs {
		if id == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidApplicationID, id)
}

func (v *Verifier) checkTimestamp(env *RequestEnvelope) error {
	if v.cfg.TimestampTolerance <= 0 {
		return nil
	}
	ts := env.Timestamp()
	if ts.IsZero() {
		return fmt.Errorf("%w: missing or unparseable timestamp", ErrStaleTimestamp)
	}
	skew := v.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.cfg.TimestampTolerance {
		return fmt.Errorf("%w: skew %s", ErrStaleTimestamp, skew.Round(time.Second))
	}
	return nil
}

func (v *Verifier) checkSignature(ctx context.Context, certURL, signature string, body []byte) error {
	if certURL == "" || signature == "" {
		return ErrMissingSignature
	}
	if err := ValidateCertURL(certURL); err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	leaf, err := v.certificate(ctx, certURL)
	if err != nil {
		return err
	}

	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: not an RSA key", ErrInvalidCertificate)
	}
	digest := sha256.Sum256(body)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// certificate returns the verified leaf certificate for certURL, using the
// cached chain when present.
func (v *Verifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	key := certCachePrefix + certURL

	var chain []byte
	if v.cache != nil {
		if cached, err := v.cache.Get(ctx, key); err == nil {
			chain = []byte(cached)
		} else if !errors.Is(err, ports.ErrCacheMiss) {
			v.log.Warn("Certificate cache read failed", zap.Error(err))
		}
	}

	fromCache := chain != nil
	if !fromCache {
		fetched, err := v.fetch(ctx, certURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
		}
		chain = fetched
	}

	leaf, err := v.verifyChain(chain)
	if err != nil {
		if fromCache && v.cache != nil {
			_ = v.cache.Delete(ctx, key)
		}
		return nil, err
	}

	if !fromCache && v.cache != nil {
		ttl := leaf.NotAfter.Sub(v.now())
		if ttl > maxCertCacheTTL {
			ttl = maxCertCacheTTL
		}
		if err := v.cache.Set(ctx, key, string(chain), ttl); err != nil {
			v.log.Warn("Certificate cache write failed", zap.Error(err))
		}
	}
	return leaf, nil
}

func (v *Verifier) verifyChain(chain []byte) (*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := chain
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: no certificates in chain", ErrInvalidCertificate)
	}

	leaf := certs[0]
	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}

	_, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       certSAN,
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return leaf, nil
}

// ValidateCertURL applies Alexa's rules for SignatureCertChainUrl: https,
// host s3.amazonaws.com, port 443 if any, path under /echo.api/.
func ValidateCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertURL, err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("%w: scheme %q", ErrInvalidCertURL, u.Scheme)
	}
	if !strings.EqualFold(u.Hostname(), certHost) {
		return fmt.Errorf("%w: host %q", ErrInvalidCertURL, u.Hostname())
	}
	if p := u.Port(); p != "" && p != "443" {
		return fmt.Errorf("%w: port %q", ErrInvalidCertURL, p)
	}
	if !strings.HasPrefix(path.Clean(u.Path), certPathPrefix) {
		return fmt.Errorf("%w: path %q", ErrInvalidCertURL, u.Path)
	}
	return nil
}
