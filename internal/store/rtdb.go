package store

import (
	"context"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/errorutils"
	"google.golang.org/api/option"

	"classroom/internal/recordstore"
)

// NewFirebaseApp initializes the Admin SDK. An empty credentialsFile uses
// application default credentials.
func NewFirebaseApp(ctx context.Context, projectID, databaseURL, credentialsFile string) (*firebase.App, error) {
	conf := &firebase.Config{ProjectID: projectID, DatabaseURL: databaseURL}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return firebase.NewApp(ctx, conf, opts...)
}

// RTDB is a Backend over the Firebase Realtime Database.
type RTDB struct {
	client *db.Client
}

// NewRTDB opens the database client of app.
func NewRTDB(ctx context.Context, app *firebase.App) (*RTDB, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, err
	}
	return &RTDB{client: client}, nil
}

func (r *RTDB) ref(p recordstore.Path) *db.Ref {
	if p.IsRoot() {
		return r.client.NewRef("/")
	}
	return r.client.NewRef(p.String())
}

func (r *RTDB) Get(ctx context.Context, p recordstore.Path) (any, error) {
	var v any
	if err := r.ref(p).Get(ctx, &v); err != nil {
		return nil, mapFirebaseError(err)
	}
	return recordstore.Normalize(v)
}

func (r *RTDB) Set(ctx context.Context, p recordstore.Path, v any) error {
	if v == nil {
		return r.Delete(ctx, p)
	}
	return mapFirebaseError(r.ref(p).Set(ctx, v))
}

func (r *RTDB) Update(ctx context.Context, base recordstore.Path, writes []recordstore.Write) error {
	prefix := base.String()
	children := make(map[string]interface{}, len(writes))
	for _, w := range writes {
		rel := w.Path.String()
		if prefix != "" {
			rel = strings.TrimPrefix(rel, prefix+"/")
		}
		children[rel] = w.Value
	}
	return mapFirebaseError(r.ref(base).Update(ctx, children))
}

func (r *RTDB) Delete(ctx context.Context, p recordstore.Path) error {
	return mapFirebaseError(r.ref(p).Delete(ctx))
}

func (r *RTDB) Push(ctx context.Context, p recordstore.Path, v any) (string, error) {
	child, err := r.ref(p).Push(ctx, v)
	if err != nil {
		return "", mapFirebaseError(err)
	}
	return child.Key, nil
}

// Close is a no-op; the Admin SDK holds no per-client connections.
func (r *RTDB) Close() error { return nil }

func mapFirebaseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errorutils.IsUnauthenticated(err), errorutils.IsPermissionDenied(err):
		return &recordstore.Error{Kind: recordstore.KindUnauthenticated, Err: err}
	case errorutils.IsNotFound(err):
		return &recordstore.Error{Kind: recordstore.KindNotFound, Err: err}
	case errorutils.IsInvalidArgument(err):
		return &recordstore.Error{Kind: recordstore.KindInvalidRecord, Err: err}
	}
	return &recordstore.Error{Kind: recordstore.KindUnavailable, Err: err}
}
