package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Event is one authorization access record: who presented which token,
// against which endpoint, and whether the permissions cache served it.
type Event struct {
	EventID     uuid.UUID `json:"event_id"`
	TokenPrefix string    `json:"token_prefix"`
	Endpoint    string    `json:"endpoint"`
	Timestamp   int64     `json:"ts"`
	ClientIP    string    `json:"ip"`
	Valid       bool      `json:"valid"`
	UsedCache   *bool     `json:"used_cache,omitempty"`
}

// TokenPrefix truncates a token for log lines. Eight hex chars identify a
// token among live ones without leaking enough to replay it.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

// Logger writes the access line and, when a publisher is attached, fans
// the event out to NATS.
type Logger struct {
	publisher *Publisher
}

func NewLogger(publisher *Publisher) *Logger {
	return &Logger{publisher: publisher}
}

// Identity records an identity-only check (no service context).
func (l *Logger) Identity(token, endpoint, clientIP string, valid bool) {
	l.emit(Event{
		TokenPrefix: TokenPrefix(token),
		Endpoint:    endpoint,
		ClientIP:    clientIP,
		Valid:       valid,
	})
}

// Scoped records a service-scoped check, noting whether the permissions
// cache answered it.
func (l *Logger) Scoped(token, endpoint, clientIP string, valid, usedCache bool) {
	l.emit(Event{
		TokenPrefix: TokenPrefix(token),
		Endpoint:    endpoint,
		ClientIP:    clientIP,
		Valid:       valid,
		UsedCache:   &usedCache,
	})
}

// emit writes the line and fans out. The log line is the source of truth;
// the NATS copy is best effort and never blocks the request.
func (l *Logger) emit(evt Event) {
	evt.EventID = uuid.New()
	evt.Timestamp = time.Now().Unix()

	if evt.UsedCache != nil {
		log.Printf("[access] token=%s endpoint=%s ts=%d ip=%s valid=%t used_cache=%t",
			evt.TokenPrefix, evt.Endpoint, evt.Timestamp, evt.ClientIP, evt.Valid, *evt.UsedCache)
	} else {
		log.Printf("[access] token=%s endpoint=%s ts=%d ip=%s valid=%t",
			evt.TokenPrefix, evt.Endpoint, evt.Timestamp, evt.ClientIP, evt.Valid)
	}

	if l.publisher != nil {
		go func() {
			if err := l.publisher.Publish(&evt); err != nil {
				log.Printf("[audit] publish failed: %v", err)
			}
		}()
	}
}

// Publisher pushes audit events onto a NATS subject with bounded retry.
type Publisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewPublisher(conn *nats.Conn, subject string, maxRetries int) *Publisher {
	return &Publisher{conn: conn, subject: subject, maxRetries: maxRetries}
}

func (p *Publisher) Publish(evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
