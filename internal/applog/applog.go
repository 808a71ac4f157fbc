// Package applog proxies the standard logger and, when configured, mirrors
// every line to Google Cloud Logging.
package applog

import (
	"context"
	"log"
	"sync"

	logging "cloud.google.com/go/logging"
)

var (
	mu     sync.RWMutex
	client *logging.Client
	cloud  *log.Logger
)

// Init attaches a Cloud Logging sink. An empty projectID leaves logging local.
func Init(ctx context.Context, projectID, logName string) error {
	if projectID == "" {
		return nil
	}
	c, err := logging.NewClient(ctx, projectID)
	if err != nil {
		return err
	}
	if logName == "" {
		logName = "classroom"
	}
	mu.Lock()
	client = c
	cloud = c.Logger(logName).StandardLogger(logging.Info)
	mu.Unlock()
	return nil
}

// Close flushes buffered entries and detaches the Cloud Logging sink.
func Close() error {
	mu.Lock()
	c := client
	client, cloud = nil, nil
	mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

func remote() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return cloud
}

// Print is a proxy for log.Print.
func Print(v ...interface{}) {
	log.Print(v...)
	if l := remote(); l != nil {
		l.Print(v...)
	}
}

// Println is a proxy for log.Println.
func Println(v ...interface{}) {
	log.Println(v...)
	if l := remote(); l != nil {
		l.Println(v...)
	}
}

// Printf is a proxy for log.Printf.
func Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
	if l := remote(); l != nil {
		l.Printf(format, v...)
	}
}

// Fatal logs then exits. The remote sink is flushed first.
func Fatal(v ...interface{}) {
	if l := remote(); l != nil {
		l.Print(v...)
		_ = Close()
	}
	log.Fatal(v...)
}

// Fatalf logs then exits. The remote sink is flushed first.
func Fatalf(format string, v ...interface{}) {
	if l := remote(); l != nil {
		l.Printf(format, v...)
		_ = Close()
	}
	log.Fatalf(format, v...)
}
