// Package usecase contains the application use cases for the ingestion
// core: token authentication, event ingestion, and the worker pipeline.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/internal/ingestion/domain"
	apperrors "github.com/originsignal/ingestion/pkg/errors"
	"github.com/originsignal/ingestion/pkg/logger"
)

// tokenCacheTTL bounds how long a verified token record may be served from
// cache before the next request falls through to Postgres again. Short
// enough that a revoked token stops working within one TTL window.
const tokenCacheTTL = 30 * time.Second

// AuthenticateTokenUseCase implements C1: validate the bearer token,
// resolve it to a website, enforce expiry/revocation/IP allowlist.
type AuthenticateTokenUseCase struct {
	tokens domain.TokenRepository
	cache  ports.CacheService
	clock  ports.Clock
}

// NewAuthenticateTokenUseCase constructs the use case. cache is optional
// (may be nil); when present it holds a short-lived copy of verified
// tokens so repeated requests from the same SDK don't all hit Postgres.
func NewAuthenticateTokenUseCase(tokens domain.TokenRepository, cache ports.CacheService, clock ports.Clock) *AuthenticateTokenUseCase {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &AuthenticateTokenUseCase{tokens: tokens, cache: cache, clock: clock}
}

// Execute runs §4.1 steps 1-5 and returns the authenticated token. Step 6
// (touching last_used_at) is left to the caller to run best-effort/async,
// since it must never fail or delay the request.
func (uc *AuthenticateTokenUseCase) Execute(ctx context.Context, authHeader, clientIP string) (*domain.IngestionToken, error) {
	parsed, ok := domain.ParseBearerToken(authHeader)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeTokenMalformed, "missing or malformed Authorization header")
	}

	token, err := uc.lookupToken(ctx, parsed.Prefix)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeTokenInvalid, "unrecognized token")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to look up token")
	}

	if token.IsRevoked() {
		return nil, apperrors.New(apperrors.ErrCodeTokenRevoked, "token has been revoked")
	}

	now := uc.clock.Now()
	if token.IsExpired(now) {
		return nil, apperrors.New(apperrors.ErrCodeTokenExpired, "token has expired")
	}

	candidateHash := domain.HashTokenPlaintext(parsed.Prefix, parsed.Secret)
	if !token.VerifyHash(candidateHash) {
		return nil, apperrors.New(apperrors.ErrCodeTokenInvalid, "token secret mismatch")
	}

	if !token.IPAllowed(normalizeIP(clientIP)) {
		return nil, apperrors.New(apperrors.ErrCodeIPNotAllowed, "IP address not allowed")
	}

	return token, nil
}

// lookupToken resolves a token by prefix through a cache-aside read in
// front of Postgres. A cache hit skips the DB entirely; the revoked/
// expired/hash/IP checks in Execute still run against whatever record is
// returned, cached or not.
func (uc *AuthenticateTokenUseCase) lookupToken(ctx context.Context, prefix string) (*domain.IngestionToken, error) {
	cacheKey := tokenCacheKey(prefix)

	if uc.cache != nil {
		if raw, err := uc.cache.Get(ctx, cacheKey); err == nil && raw != nil {
			var cached domain.IngestionToken
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return &cached, nil
			}
		}
	}

	token, err := uc.tokens.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if raw, err := json.Marshal(token); err == nil {
			if err := uc.cache.Set(ctx, cacheKey, raw, tokenCacheTTL); err != nil {
				logger.FromContext(ctx).Warn().Err(err).Str("prefix", prefix).Msg("failed to cache ingestion token")
			}
		}
	}

	return token, nil
}

func tokenCacheKey(prefix string) string {
	return fmt.Sprintf("ingestion:token:%s", prefix)
}

// TouchLastUsed records token usage best-effort; callers run this after
// responding and log rather than fail the request on error (§4.1 step 6).
func (uc *AuthenticateTokenUseCase) TouchLastUsed(ctx context.Context, token *domain.IngestionToken) {
	now := uc.clock.Now()
	if err := uc.tokens.TouchLastUsed(ctx, token.ID, now); err != nil {
		logger.FromContext(ctx).Warn().
			Err(err).
			Int64("token_id", token.ID).
			Msg("failed to record token last_used_at")
	}
}

func normalizeIP(ip string) string {
	// Strip a port if the caller passed RemoteAddr verbatim (host:port).
	if idx := strings.LastIndexByte(ip, ':'); idx != -1 && !strings.Contains(ip, "]") {
		if _, err := parsePort(ip[idx+1:]); err == nil {
			return ip[:idx]
		}
	}
	return ip
}

func parsePort(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, errors.New("empty port")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not numeric")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
