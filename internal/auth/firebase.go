package auth

import (
	"context"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseVerifier checks Firebase Authentication ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebaseVerifier opens the auth client of app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	tok, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	return identityFromClaims(tok.UID, tok.Claims), nil
}

func identityFromClaims(uid string, claims map[string]interface{}) Identity {
	id := Identity{UID: uid}
	if s, ok := claims["email"].(string); ok {
		id.Email = s
	}
	if s, ok := claims["name"].(string); ok {
		id.DisplayName = s
	}
	if s, ok := claims["picture"].(string); ok {
		id.PhotoURL = s
	}
	return id
}
