package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/common/ratelimit"
)

const (
	HeaderWallet = "X-Wallet-Address"
	HeaderEmail  = "X-User-Email"

	// Context keys set by CaptureIdentity
	WalletKey = "wallet"
	EmailKey  = "email"
)

// Limiter is the subset of *ratelimit.RateLimiter the middleware uses
type Limiter interface {
	CheckGlobalLimit(ctx context.Context) (*ratelimit.Result, error)
	CheckWalletLimit(ctx context.Context, wallet string) (*ratelimit.Result, error)
}

// CaptureIdentity stores the caller's self-declared wallet and email for logging
// and rate limiting. They grant nothing: authorization lives on the ledger.
func CaptureIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if wallet := strings.TrimSpace(c.Request().Header.Get(HeaderWallet)); common.IsHexAddress(wallet) {
				c.Set(WalletKey, strings.ToLower(common.HexToAddress(wallet).Hex()))
			}
			if email := strings.TrimSpace(c.Request().Header.Get(HeaderEmail)); email != "" {
				c.Set(EmailKey, strings.ToLower(email))
			}
			return next(c)
		}
	}
}

// Wallet returns the wallet captured by CaptureIdentity, or ""
func Wallet(c echo.Context) string {
	wallet, _ := c.Get(WalletKey).(string)
	return wallet
}

// GlobalRateLimitMiddleware protects the ledger signer from bursts across all callers
func GlobalRateLimitMiddleware(limiter Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobalLimit(c.Request().Context())
			if err != nil {
				// fail open
				return next(c)
			}
			if !result.Allowed {
				return tooManyRequests(c, "global_rate_limit_exceeded",
					"Service is experiencing high load. Please try again later.", result, nil)
			}
			return next(c)
		}
	}
}

// WalletRateLimitMiddleware limits transitions per declared wallet; callers without
// a wallet header share the client IP's bucket.
func WalletRateLimitMiddleware(limiter Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			bucket := Wallet(c)
			if bucket == "" {
				bucket = "ip:" + c.RealIP()
			}

			result, err := limiter.CheckWalletLimit(c.Request().Context(), bucket)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return tooManyRequests(c, "wallet_rate_limit_exceeded",
					"You have exceeded your transaction quota. Please wait before trying again.",
					result, map[string]interface{}{"wallet": bucket})
			}
			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, code, message string, result *ratelimit.Result, extra map[string]interface{}) error {
	details := map[string]interface{}{
		"limit":               result.Limit,
		"current_count":       result.CurrentCount,
		"retry_after_seconds": result.RetryAfterSeconds,
	}
	for k, v := range extra {
		details[k] = v
	}
	c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"success": false,
		"error":   code,
		"message": message,
		"details": details,
	})
}
