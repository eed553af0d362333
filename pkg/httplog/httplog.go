// Package httplog formats access-log lines in Apache Common Log Format,
// handing the formatted string to a caller-supplied logrus logger — the
// sink itself is an external collaborator, per spec.md's logging Non-goal.
package httplog

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nblabs/httpcore/pkg/message"
)

// Entry is the data needed to render one Common Log Format line:
// %h %l %u %t "%r" %s %b "%{Referer}i" "%{User-Agent}i" %P
type Entry struct {
	RemoteHost string
	RemoteUser string // "-" if unauthenticated
	Time       time.Time
	Request    *message.Request
	Status     int
	BodyBytes  int64
	PID        int
}

const timeLayout = "02/Jan/2006:15:04:05 -0700"

// Format renders e as a single Common Log Format line.
func Format(e Entry) string {
	user := e.RemoteUser
	if user == "" {
		user = "-"
	}
	requestLine := "-"
	referer := "-"
	userAgent := "-"
	if e.Request != nil {
		target := e.Request.URI.String()
		requestLine = fmt.Sprintf("%s %s %s", e.Request.Method, target, e.Request.Protocol)
		if v, ok := e.Request.Header.Get("Referer"); ok {
			referer = v
		}
		if e.Request.UserAgent != "" {
			userAgent = e.Request.UserAgent
		}
	}
	return fmt.Sprintf(`%s - %s [%s] "%s" %d %d "%s" "%s" %d`,
		e.RemoteHost, user, e.Time.Format(timeLayout), requestLine,
		e.Status, e.BodyBytes, referer, userAgent, e.PID)
}

// Log formats e and writes it to logger at Info level under the "access"
// field, so structured-log consumers can filter access lines from the rest
// of the server's lifecycle/error logging.
func Log(logger *logrus.Logger, e Entry) {
	logger.WithField("access", true).Info(Format(e))
}
