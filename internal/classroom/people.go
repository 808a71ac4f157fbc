package classroom

import (
	"context"

	"classroom/internal/auth"
	"classroom/internal/recordstore"
)

// AddPerson adds a participant to a course.
func (s *Service) AddPerson(ctx context.Context, courseID string, in PersonInput) (Person, error) {
	if _, err := auth.Require(ctx); err != nil {
		return Person{}, err
	}
	if err := Check(in); err != nil {
		return Person{}, err
	}
	if err := nonBlank("name", &in.Name); err != nil {
		return Person{}, err
	}
	parent, err := PeoplePath.Expand(courseID)
	if err != nil {
		return Person{}, err
	}
	record := map[string]any{"name": in.Name}
	if in.Email != "" {
		record["email"] = in.Email
	}
	key, err := s.store.Create(ctx, parent, record)
	if err != nil {
		return Person{}, err
	}
	return Person{ID: key, Name: in.Name, Email: in.Email}, nil
}

// GetPerson returns one participant.
func (s *Service) GetPerson(ctx context.Context, courseID, personID string) (Person, error) {
	if _, err := auth.Require(ctx); err != nil {
		return Person{}, err
	}
	p, err := PersonPath.Expand(courseID, personID)
	if err != nil {
		return Person{}, err
	}
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return Person{}, err
	}
	if !snap.Exists() {
		return Person{}, notFound("person", p)
	}
	var person Person
	if err := snap.Decode(&person); err != nil {
		return Person{}, err
	}
	setPersonID(&person, personID)
	return person, nil
}

// ListPeople returns a course's participants in the order they were added.
func (s *Service) ListPeople(ctx context.Context, courseID string) ([]Person, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}
	p, err := PeoplePath.Expand(courseID)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	return decodeChildren(snap, setPersonID)
}

// WatchPeople streams a course's participant list.
func (s *Service) WatchPeople(ctx context.Context, courseID string, fn func([]Person), onErr func(error)) (*recordstore.Subscription, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}
	p, err := PeoplePath.Expand(courseID)
	if err != nil {
		return nil, err
	}
	return watchList(ctx, s, p, setPersonID, fn, onErr)
}

// UpdatePerson merges the listed attributes into a participant.
func (s *Service) UpdatePerson(ctx context.Context, courseID, personID string, u PersonUpdate) (Person, error) {
	if err := Check(u); err != nil {
		return Person{}, err
	}
	if err := nonBlank("name", u.Name); err != nil {
		return Person{}, err
	}
	if err := optionalEmail(u.Email); err != nil {
		return Person{}, err
	}
	current, err := s.GetPerson(ctx, courseID, personID)
	if err != nil {
		return Person{}, err
	}
	partial := map[string]any{}
	setOrClear(partial, "name", u.Name)
	setOrClear(partial, "email", u.Email)
	if len(partial) == 0 {
		return Person{}, recordstore.Errorf(recordstore.KindInvalidRecord, "nothing to update")
	}
	p, err := PersonPath.Expand(courseID, personID)
	if err != nil {
		return Person{}, err
	}
	if err := s.store.Update(ctx, p, partial); err != nil {
		return Person{}, err
	}
	if u.Name != nil {
		current.Name = *u.Name
	}
	if u.Email != nil {
		current.Email = *u.Email
	}
	return current, nil
}

// DeletePerson removes a participant. Removing an absent person succeeds.
func (s *Service) DeletePerson(ctx context.Context, courseID, personID string) error {
	if _, err := auth.Require(ctx); err != nil {
		return err
	}
	p, err := PersonPath.Expand(courseID, personID)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, p)
}

func setPersonID(p *Person, key string) { p.ID = key }
