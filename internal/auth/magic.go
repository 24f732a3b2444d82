package auth

import (
	"context"
	"errors"
	"net/url"

	"github.com/shorttrack/apiserver/internal/delivery"
	"github.com/shorttrack/apiserver/internal/store"
	"github.com/shorttrack/apiserver/types"
)

const magicConsumePath = "/api/auth/magic/consume"

// MagicLink reports a sign-in link request. URL is set only when email is
// not configured.
type MagicLink struct {
	URL string `json:"url,omitempty"`
}

// RequestMagicLink emails a one-time sign-in link. Unknown emails get the
// same empty success and nothing is stored for them.
func (a *Authority) RequestMagicLink(ctx context.Context, email string) (MagicLink, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return MagicLink{}, err
	}

	if _, err := a.users.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return MagicLink{}, nil
		}
		return MagicLink{}, internalError("failed to load user", err)
	}

	token, _, err := a.issueCode(ctx, codeRequest{
		purpose:  types.PurposeMagicLogin,
		target:   email,
		ttl:      magicLinkTTL,
		generate: magicToken,
	})
	if err != nil {
		return MagicLink{}, err
	}

	link := a.magicURL(token, email)
	receipt, err := a.gateway.SendEmail(ctx, email, "Your ShortTrack sign-in link",
		delivery.MagicLinkEmail(link, int(magicLinkTTL.Minutes())))
	out, err := a.dispatch(receipt, err, link, "sign-in link")
	if err != nil {
		return MagicLink{}, err
	}
	return MagicLink{URL: out.Code}, nil
}

// ConsumeMagicLink signs a user in with a link token. The email counts as
// verified and the account becomes active.
func (a *Authority) ConsumeMagicLink(ctx context.Context, token, email string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}

	var user types.User
	err = a.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := a.redeemCode(ctx, types.PurposeMagicLogin, email, token, FieldToken); err != nil {
			return err
		}

		current, err := a.users.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return verificationError(FieldToken)
			}
			return internalError("failed to load user", err)
		}
		user = current

		var patch types.UserPatch
		if current.EmailVerifiedAt == nil {
			now := a.now()
			patch.EmailVerifiedAt = &now
		}
		if !current.IsActive {
			patch.IsActive = ptr(true)
		}
		if patch.Empty() {
			return nil
		}
		if user, err = a.users.Update(ctx, current.ID, patch); err != nil {
			return internalError("failed to update user", err)
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return a.session(user)
}

func (a *Authority) magicURL(token, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return a.publicBase + magicConsumePath + "?" + q.Encode()
}
