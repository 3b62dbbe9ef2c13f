// Package parser splits raw model output into fenced code blocks, a trailing
// JSON payload and the prose that surrounds them.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoJSON means the text has no trailing object to parse.
	ErrNoJSON = errors.New("no trailing json object")
	// ErrMalformedJSON means a trailing object was found but is not valid JSON.
	ErrMalformedJSON = errors.New("malformed trailing json object")
)

var codeBlockPattern = regexp.MustCompile("(?s)```.*?```")

// Candidate is a reminder the model asked to schedule. Fields are copied as
// the model wrote them; validation happens in the scheduler.
type Candidate struct {
	Message string
	Time    string
	Context string
}

// Payload is the structured part of a model response.
type Payload struct {
	// Object is the decoded JSON object.
	Object map[string]any
	// UserMessage is set when the object carries a string userMessage field.
	UserMessage    string
	HasUserMessage bool
	Reminders      []Candidate
	Raw            string
}

// Result is the outcome of splitting one model response.
type Result struct {
	CodeBlocks  []string
	JSON        *Payload
	NonJSONText string
	// Err explains why JSON is nil. It is informational; parsing never fails.
	Err error
}

// Locator finds the JSON substring inside text with code blocks removed.
// It returns the start and end offsets, or ok=false when there is nothing that looks like an object.
type Locator func(text string) (start, end int, ok bool)

// Parser splits model responses. The zero value uses TrailingObject.
type Parser struct {
	Locate Locator
}

// Parse splits raw with the default locator.
func Parse(raw string) Result {
	return Parser{}.Parse(raw)
}

// Parse splits raw into code blocks, payload and remaining prose.
func (p Parser) Parse(raw string) Result {
	locate := p.Locate
	if locate == nil {
		locate = TrailingObject
	}

	codeBlocks := codeBlockPattern.FindAllString(raw, -1)
	if codeBlocks == nil {
		codeBlocks = []string{}
	}
	remaining := strings.TrimSpace(codeBlockPattern.ReplaceAllString(raw, ""))

	start, end, ok := locate(remaining)
	if !ok {
		return Result{CodeBlocks: codeBlocks, NonJSONText: remaining, Err: ErrNoJSON}
	}

	nonJSON := strings.TrimSpace(remaining[:start] + remaining[end:])
	payload, err := DecodePayload(remaining[start:end])
	if err != nil {
		return Result{CodeBlocks: codeBlocks, NonJSONText: nonJSON, Err: err}
	}
	return Result{CodeBlocks: codeBlocks, JSON: payload, NonJSONText: nonJSON}
}

// TrailingObject locates the object that starts at the first '{' and ends at
// the final '}' of the text. The text must end with that brace.
func TrailingObject(text string) (int, int, bool) {
	if !strings.HasSuffix(text, "}") {
		return 0, 0, false
	}
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return 0, 0, false
	}
	return start, len(text), true
}

// DecodePayload parses raw as a JSON object and lifts out the userMessage and
// reminders fields. Reminder entries that are not objects are dropped.
func DecodePayload(raw string) (*Payload, error) {
	if !gjson.Valid(raw) {
		return nil, ErrMalformedJSON
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: top level value is not an object", ErrMalformedJSON)
	}

	object, _ := parsed.Value().(map[string]any)
	payload := &Payload{Object: object, Raw: raw}

	if msg := parsed.Get("userMessage"); msg.Type == gjson.String {
		payload.UserMessage = msg.String()
		payload.HasUserMessage = true
	}

	parsed.Get("reminders").ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		payload.Reminders = append(payload.Reminders, Candidate{
			Message: item.Get("message").String(),
			Time:    item.Get("time").String(),
			Context: item.Get("context").String(),
		})
		return true
	})
	return payload, nil
}
