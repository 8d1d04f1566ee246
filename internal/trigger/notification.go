// Package trigger turns object notifications into pipeline runs.
//
// Notifications arrive from three places: the HTTP endpoint, the inbox
// watcher and the scheduled sweep. All of them go through a Dispatcher, which
// applies profile admission, the invocation limit and the run log.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Notification announces one uploaded object.
// Name is percent-encoded, the way storage event payloads carry it.
type Notification struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// NotificationFor builds a notification for a plain object path.
func NotificationFor(container, objectPath string) Notification {
	return Notification{Bucket: container, Name: (&url.URL{Path: objectPath}).EscapedPath()}
}

// ObjectPath returns the decoded object name. Names that are not valid
// escapes are returned unchanged.
func (n Notification) ObjectPath() string {
	p, err := url.PathUnescape(n.Name)
	if err != nil {
		return n.Name
	}
	return p
}

// Empty reports a notification with no object name.
func (n Notification) Empty() bool {
	return strings.TrimSpace(n.Name) == ""
}

// DecodeNotification reads one JSON notification. An empty body decodes to
// the zero Notification without error.
func DecodeNotification(r io.Reader) (Notification, error) {
	var n Notification
	if err := json.NewDecoder(r).Decode(&n); err != nil {
		if errors.Is(err, io.EOF) {
			return Notification{}, nil
		}
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}
