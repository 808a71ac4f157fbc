package classroom

import (
	"context"
	"strings"

	"classroom/internal/auth"
	"classroom/internal/recordstore"
)

// EnsureProfile creates the caller's profile from their identity on first
// sign-in and returns it. Existing attributes and courses are kept.
func (s *Service) EnsureProfile(ctx context.Context) (Profile, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Profile{}, err
	}
	p, err := ProfilePath.Expand(id.UID)
	if err != nil {
		return Profile{}, err
	}
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return Profile{}, err
	}
	if _, ok := snap.Child("name").Str(); ok {
		return decodeProfile(snap)
	}

	profile := Profile{
		UserID: id.UID,
		Name:   displayName(id),
		Email:  id.Email,
		Photo:  id.PhotoURL,
	}
	partial := map[string]any{"name": profile.Name, "photo": profile.Photo}
	if profile.Email != "" {
		partial["email"] = profile.Email
	}
	if err := s.store.Update(ctx, p, partial); err != nil {
		return Profile{}, err
	}
	return s.GetProfile(ctx)
}

// GetProfile returns the caller's profile.
func (s *Service) GetProfile(ctx context.Context) (Profile, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Profile{}, err
	}
	p, err := ProfilePath.Expand(id.UID)
	if err != nil {
		return Profile{}, err
	}
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return Profile{}, err
	}
	if !snap.Exists() {
		return Profile{}, notFound("profile", p)
	}
	return decodeProfile(snap)
}

// UpdateProfile merges the listed attributes into the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, u ProfileUpdate) (Profile, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Profile{}, err
	}
	if err := Check(u); err != nil {
		return Profile{}, err
	}
	if err := nonBlank("name", u.Name); err != nil {
		return Profile{}, err
	}
	if err := optionalEmail(u.Email); err != nil {
		return Profile{}, err
	}
	p, err := ProfilePath.Expand(id.UID)
	if err != nil {
		return Profile{}, err
	}

	partial := map[string]any{}
	setOrClear(partial, "name", u.Name)
	setOrClear(partial, "email", u.Email)
	setOrClear(partial, "photo", u.Photo)
	setOrClear(partial, "username", u.Username)
	if len(partial) == 0 {
		return Profile{}, recordstore.Errorf(recordstore.KindInvalidRecord, "nothing to update")
	}
	if err := s.store.Update(ctx, p, partial); err != nil {
		return Profile{}, err
	}
	if u.Photo != nil {
		s.offload(ctx, "photo", *u.Photo, p)
	}
	return s.GetProfile(ctx)
}

// UserName returns the profile name of uid, or "" when it has none.
func (s *Service) UserName(ctx context.Context, uid string) (string, error) {
	p, err := ProfilePath.Expand(uid)
	if err != nil {
		return "", err
	}
	name, err := p.Child("name")
	if err != nil {
		return "", err
	}
	snap, err := s.store.Read(ctx, name)
	if err != nil {
		return "", err
	}
	v, _ := snap.Str()
	return v, nil
}

func decodeProfile(snap recordstore.Snapshot) (Profile, error) {
	var profile Profile
	if err := snap.Decode(&profile); err != nil {
		return Profile{}, err
	}
	profile.UserID = snap.Key()
	return profile, nil
}

func displayName(id auth.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if i := strings.IndexByte(id.Email, '@'); i > 0 {
		return id.Email[:i]
	}
	return AnonymousAuthor
}

// setOrClear copies a present pointer into partial; an empty string
// removes the attribute.
func setOrClear(partial map[string]any, key string, v *string) {
	if v == nil {
		return
	}
	if *v == "" {
		partial[key] = nil
		return
	}
	partial[key] = *v
}
