package chatclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// ErrRefreshFailed is returned when the provider rejects the refresh
// token. The caller must re-authenticate interactively.
var ErrRefreshFailed = apperrors.New(apperrors.KindAuth, "token refresh rejected")

// HTTPRefresher calls the identity provider's token endpoint.
type HTTPRefresher struct {
	client   *resty.Client
	tokenURL string
}

// NewHTTPRefresher builds a refresher against the given token endpoint.
func NewHTTPRefresher(tokenURL string) *HTTPRefresher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &HTTPRefresher{client: client, tokenURL: tokenURL}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the refresh token. A 4xx from the provider means the
// refresh token itself is no longer good; anything else is transient.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(refreshRequest{RefreshToken: refreshToken}).
		SetResult(&pair).
		Post(r.tokenURL)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.KindTransient, "identity provider unreachable", err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
		if pair.AccessToken == "" {
			return TokenPair{}, ErrRefreshFailed
		}
		return pair, nil
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500:
		return TokenPair{}, ErrRefreshFailed
	default:
		return TokenPair{}, apperrors.New(apperrors.KindTransient, "identity provider error")
	}
}
