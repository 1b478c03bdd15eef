package twitchapi

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the Twitch OAuth client-credentials endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// AppTokenSource returns a caching token source for a Twitch app access
// (client credentials) token. Twitch expects the client id/secret in the
// request body rather than basic auth. Pass tokenURL="" for production.
func AppTokenSource(ctx context.Context, clientID, clientSecret, tokenURL string) oauth2.TokenSource {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cfg.TokenSource(ctx)
}
