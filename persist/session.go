package persist

import (
	"context"

	"github.com/agentuity/go-storefront/session"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Keys under which the session is persisted.
const (
	KeyToken = "authToken"
	KeyUser  = "authUser"
)

var (
	// ErrCorruptUser is returned by Load when the stored user record cannot be decoded.
	ErrCorruptUser = errors.New("persist: stored user record is corrupt")
	// ErrClosed is returned by operations on a closed Storage.
	ErrClosed = errors.New("persist: storage closed")
)

// Load reads the persisted credentials. Missing keys yield nil values. When
// the user record is corrupt the token is still returned together with an
// error wrapping ErrCorruptUser.
func Load(ctx context.Context, s Storage) (*string, *session.User, error) {
	found, raw, err := s.Get(ctx, KeyToken)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load token")
	}
	var token *string
	if found {
		tok := string(raw)
		token = &tok
	}

	found, raw, err = s.Get(ctx, KeyUser)
	if err != nil {
		return token, nil, errors.Wrap(err, "load user")
	}
	if !found {
		return token, nil, nil
	}
	var user session.User
	if err := msgpack.Unmarshal(raw, &user); err != nil {
		return token, nil, errors.WithSecondaryError(errors.Wrapf(ErrCorruptUser, "decode user: %v", err), err)
	}
	return token, &user, nil
}

// Save persists the credentials. A nil token or user deletes the matching key.
func Save(ctx context.Context, s Storage, token *string, user *session.User) error {
	if token == nil {
		if _, err := s.Delete(ctx, KeyToken); err != nil {
			return errors.Wrap(err, "delete token")
		}
	} else if err := s.Set(ctx, KeyToken, []byte(*token)); err != nil {
		return errors.Wrap(err, "save token")
	}

	if user == nil {
		if _, err := s.Delete(ctx, KeyUser); err != nil {
			return errors.Wrap(err, "delete user")
		}
		return nil
	}
	buf, err := msgpack.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "encode user")
	}
	if err := s.Set(ctx, KeyUser, buf); err != nil {
		return errors.Wrap(err, "save user")
	}
	return nil
}

// Clear deletes both keys. Missing keys are not an error; both deletes are
// attempted even if the first fails.
func Clear(ctx context.Context, s Storage) error {
	var result error
	for _, key := range []string{KeyToken, KeyUser} {
		if _, err := s.Delete(ctx, key); err != nil {
			result = errors.CombineErrors(result, errors.Wrapf(err, "clear %s", key))
		}
	}
	return result
}
