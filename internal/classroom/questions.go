package classroom

import (
	"context"

	"classroom/internal/auth"
	"classroom/internal/recordstore"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// AskQuestion posts a question to a course as the caller.
func (s *Service) AskQuestion(ctx context.Context, courseID string, in QuestionInput) (Question, error) {
	id, err := auth.Require(ctx)
	if err != nil {
		return Question{}, err
	}
	if err := Check(in); err != nil {
		return Question{}, err
	}
	if err := nonBlank("title", &in.Title); err != nil {
		return Question{}, err
	}
	parent, err := QuestionsPath.Expand(courseID)
	if err != nil {
		return Question{}, err
	}

	author := id.DisplayName
	if author == "" {
		if author, err = s.UserName(ctx, id.UID); err != nil {
			return Question{}, err
		}
	}
	if author == "" {
		author = AnonymousAuthor
	}
	q := Question{
		Title:     in.Title,
		Details:   in.Details,
		Timestamp: s.now().UTC().Format(timestampLayout),
		UserID:    id.UID,
		UserName:  author,
	}
	key, err := s.store.Create(ctx, parent, map[string]any{
		"title":     q.Title,
		"details":   q.Details,
		"timestamp": q.Timestamp,
		"userId":    q.UserID,
		"userName":  q.UserName,
	})
	if err != nil {
		return Question{}, err
	}
	q.ID = key
	return q, nil
}

// GetQuestion returns one question.
func (s *Service) GetQuestion(ctx context.Context, courseID, questionID string) (Question, error) {
	if _, err := auth.Require(ctx); err != nil {
		return Question{}, err
	}
	p, err := QuestionPath.Expand(courseID, questionID)
	if err != nil {
		return Question{}, err
	}
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return Question{}, err
	}
	if !snap.Exists() {
		return Question{}, notFound("question", p)
	}
	var q Question
	if err := snap.Decode(&q); err != nil {
		return Question{}, err
	}
	setQuestionID(&q, questionID)
	return q, nil
}

// ListQuestions returns a course's questions oldest first.
func (s *Service) ListQuestions(ctx context.Context, courseID string) ([]Question, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}
	p, err := QuestionsPath.Expand(courseID)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	return decodeChildren(snap, setQuestionID)
}

// WatchQuestions streams a course's questions.
func (s *Service) WatchQuestions(ctx context.Context, courseID string, fn func([]Question), onErr func(error)) (*recordstore.Subscription, error) {
	if _, err := auth.Require(ctx); err != nil {
		return nil, err
	}
	p, err := QuestionsPath.Expand(courseID)
	if err != nil {
		return nil, err
	}
	return watchList(ctx, s, p, setQuestionID, fn, onErr)
}

// UpdateQuestion edits a question's title or details.
func (s *Service) UpdateQuestion(ctx context.Context, courseID, questionID string, u QuestionUpdate) (Question, error) {
	if err := Check(u); err != nil {
		return Question{}, err
	}
	if err := nonBlank("title", u.Title); err != nil {
		return Question{}, err
	}
	current, err := s.GetQuestion(ctx, courseID, questionID)
	if err != nil {
		return Question{}, err
	}
	partial := map[string]any{}
	if u.Title != nil {
		partial["title"] = *u.Title
		current.Title = *u.Title
	}
	if u.Details != nil {
		partial["details"] = *u.Details
		current.Details = *u.Details
	}
	if len(partial) == 0 {
		return Question{}, recordstore.Errorf(recordstore.KindInvalidRecord, "nothing to update")
	}
	p, err := QuestionPath.Expand(courseID, questionID)
	if err != nil {
		return Question{}, err
	}
	if err := s.store.Update(ctx, p, partial); err != nil {
		return Question{}, err
	}
	return current, nil
}

// DeleteQuestion removes a question. Removing an absent question succeeds.
func (s *Service) DeleteQuestion(ctx context.Context, courseID, questionID string) error {
	if _, err := auth.Require(ctx); err != nil {
		return err
	}
	p, err := QuestionPath.Expand(courseID, questionID)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, p)
}

func setQuestionID(q *Question, key string) { q.ID = key }
