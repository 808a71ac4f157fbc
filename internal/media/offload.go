package media

import (
	"context"
	"encoding/json"
	"fmt"

	"classroom/internal/applog"
	"classroom/internal/queue"
	"classroom/internal/recordstore"
)

// JobType tags offload messages on the queue.
const JobType = "image.offload"

// Job names an attribute holding an inline image and every record that
// carries a copy of it. The first path is authoritative.
type Job struct {
	Field string   `json:"field"`
	Paths []string `json:"paths"`
}

// Publisher queues offload jobs.
type Publisher struct {
	q queue.Queue
}

// NewPublisher returns a Publisher writing to q.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Offload queues field at paths for transfer to the object store.
func (p *Publisher) Offload(ctx context.Context, field string, paths ...recordstore.Path) error {
	job := Job{Field: field}
	for _, path := range paths {
		job.Paths = append(job.Paths, path.String())
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: JobType, Body: body})
}

// Uploader stores bytes and returns a download URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, publicID string) (string, error)
}

// Offloader performs queued jobs.
type Offloader struct {
	store *recordstore.Client
	up    Uploader
}

// NewOffloader returns an Offloader that rewrites records in store.
func NewOffloader(store *recordstore.Client, up Uploader) *Offloader {
	return &Offloader{store: store, up: up}
}

// Handle decodes and processes one queue message.
func (o *Offloader) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != JobType {
		return fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	return o.Process(ctx, job)
}

// Process uploads the inline image and replaces it with its URL wherever
// the record still holds the same inline value.
func (o *Offloader) Process(ctx context.Context, job Job) error {
	if job.Field == "" || len(job.Paths) == 0 {
		return fmt.Errorf("incomplete job %+v", job)
	}
	paths := make([]recordstore.Path, 0, len(job.Paths))
	for _, s := range job.Paths {
		p, err := recordstore.ParsePath(s)
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}

	inline, err := o.field(ctx, paths[0], job.Field)
	if err != nil {
		return err
	}
	if !IsDataURL(inline) {
		// already offloaded or replaced since the job was queued
		return nil
	}
	d, err := ParseDataURL(inline)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", paths[0], job.Field, err)
	}
	publicID := PublicID(paths[0], job.Field)
	url, err := o.up.Upload(ctx, d.Data, job.Field+d.Extension(), publicID)
	if err != nil {
		return err
	}

	partial := map[string]any{}
	for _, p := range paths {
		current, err := o.field(ctx, p, job.Field)
		if err != nil {
			return err
		}
		if current != inline {
			continue
		}
		partial[p.String()+"/"+job.Field] = url
	}
	if len(partial) == 0 {
		return nil
	}
	if err := o.store.Update(ctx, recordstore.Path{}, partial); err != nil {
		return err
	}
	applog.Printf("media: moved %s of %s to %s", job.Field, paths[0], url)
	return nil
}

func (o *Offloader) field(ctx context.Context, p recordstore.Path, field string) (string, error) {
	fp, err := p.Child(field)
	if err != nil {
		return "", err
	}
	snap, err := o.store.Read(ctx, fp)
	if err != nil {
		return "", err
	}
	v, _ := snap.Str()
	return v, nil
}

// PublicID names the stored object for field of the record at p:
// profile photos go to profile_images/{userId}/, everything else is
// named after the record path.
func PublicID(p recordstore.Path, field string) string {
	if len(p) == 2 && p[0] == "users" {
		return "profile_images/" + p[1] + "/" + field
	}
	if len(p) == 4 && p[0] == "users" && p[2] == "classroom" {
		return "course_images/" + p[3] + "/" + field
	}
	if len(p) == 2 && p[0] == "courses" {
		return "course_images/" + p[1] + "/" + field
	}
	return p.String() + "/" + field
}
