package shims

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// Message is one flushed server-push event
type Message struct {
	Type        string
	Data        string
	LastEventID string
}

// Parser accumulates server-push fields line by line. The last event id
// and reconnection delay persist across events.
type Parser struct {
	eventType   string
	data        strings.Builder
	hasData     bool
	lastEventID string
	retry       time.Duration
	started     bool
}

// Line feeds one line without its terminator. It returns the flushed
// message when line is blank and data was buffered.
func (p *Parser) Line(line string) (Message, bool) {
	if !p.started {
		p.started = true
		line = strings.TrimPrefix(line, "\uFEFF")
	}

	if line == "" {
		return p.flush()
	}
	if strings.HasPrefix(line, ":") {
		return Message{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		p.eventType = value
	case "data":
		if p.hasData {
			p.data.WriteByte('\n')
		}
		p.data.WriteString(value)
		p.hasData = true
	case "id":
		if !strings.ContainsRune(value, 0) {
			p.lastEventID = value
		}
	case "retry":
		if ms, err := strconv.ParseUint(value, 10, 31); err == nil {
			p.retry = time.Duration(ms) * time.Millisecond
		}
	}
	return Message{}, false
}

// Retry returns the server-requested reconnection delay, zero if none
func (p *Parser) Retry() time.Duration { return p.retry }

// LastEventID returns the most recent id field
func (p *Parser) LastEventID() string { return p.lastEventID }

func (p *Parser) flush() (Message, bool) {
	defer func() {
		p.eventType = ""
		p.data.Reset()
		p.hasData = false
	}()

	if !p.hasData {
		return Message{}, false
	}
	msg := Message{
		Type:        p.eventType,
		Data:        p.data.String(),
		LastEventID: p.lastEventID,
	}
	if msg.Type == "" {
		msg.Type = "message"
	}
	return msg, true
}

const (
	// MaxLineBytes bounds a single line of a push stream
	MaxLineBytes = 1 << 20
	// MaxEventBytes bounds the data buffered for one event
	MaxEventBytes = 4 << 20
)

// ErrEventTooLarge is returned by Scan when a line or event exceeds its bound
var ErrEventTooLarge = errors.New("event stream message too large")

// Scan reads r line by line (LF or CRLF) and calls emit for every flushed
// message until r ends or emit returns false. A clean end of stream returns
// nil; a partial trailing event is discarded.
func Scan(r io.Reader, p *Parser, emit func(Message) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineBytes)
	for scanner.Scan() {
		msg, ok := p.Line(scanner.Text())
		if p.data.Len() > MaxEventBytes {
			return ErrEventTooLarge
		}
		if ok && !emit(msg) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return ErrEventTooLarge
		}
		return err
	}
	return nil
}
