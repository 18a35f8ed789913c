package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

const (
	MaxTimetableLen  = 100
	MaxDurationLen   = 50
	MaxFacilitiesLen = 200
)

// FeedbackForm holds the raw values of a submitted feedback form.
type FeedbackForm struct {
	Timetable  string `json:"timetable"`
	Capacity   string `json:"capacity"`
	Duration   string `json:"duration"`
	Facilities string `json:"facilities"`
	Price      string `json:"price"`
}

// UnmarshalJSON accepts numbers as well as strings for every field, so
// {"capacity":20} and {"capacity":"20"} decode to the same form.
func (f *FeedbackForm) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timetable  json.RawMessage `json:"timetable"`
		Capacity   json.RawMessage `json:"capacity"`
		Duration   json.RawMessage `json:"duration"`
		Facilities json.RawMessage `json:"facilities"`
		Price      json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decode feedback form")
	}

	var err error
	field := func(name string, v json.RawMessage) string {
		text, ferr := rawText(v)
		if ferr != nil && err == nil {
			err = errors.Wrapf(ferr, "decode %s", name)
		}
		return text
	}
	form := FeedbackForm{
		Timetable:  field("timetable", raw.Timetable),
		Capacity:   field("capacity", raw.Capacity),
		Duration:   field("duration", raw.Duration),
		Facilities: field("facilities", raw.Facilities),
		Price:      field("price", raw.Price),
	}
	if err != nil {
		return err
	}
	*f = form
	return nil
}

// rawText returns a JSON string unquoted and any other scalar as written.
// Objects and arrays are rejected.
func rawText(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
		return "", nil
	case v[0] == '"':
		var s string
		err := json.Unmarshal(v, &s)
		return s, err
	case v[0] == '{' || v[0] == '[':
		return "", errors.Newf("unexpected %c", v[0])
	default:
		return string(v), nil
	}
}

// FeedbackInput is a validated feedback form.
type FeedbackInput struct {
	Timetable  string
	Capacity   int
	Duration   string
	Facilities string
	Price      float64
}

// ChurnFeatures is the mapping handed to the churn model. Duration is sent as "time".
type ChurnFeatures struct {
	Timetable  string  `json:"timetable"`
	Capacity   int     `json:"capacity"`
	Time       string  `json:"time"`
	Facilities string  `json:"facilities"`
	Price      float64 `json:"price"`
}

// ValidationError maps form fields to their problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid feedback: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Validate checks every field and returns the typed input or a *ValidationError.
func (f FeedbackForm) Validate() (FeedbackInput, error) {
	fields := map[string]string{}
	in := FeedbackInput{
		Timetable:  strings.TrimSpace(f.Timetable),
		Duration:   strings.TrimSpace(f.Duration),
		Facilities: strings.TrimSpace(f.Facilities),
	}

	requireText(fields, "timetable", in.Timetable, MaxTimetableLen)
	requireText(fields, "duration", in.Duration, MaxDurationLen)
	requireText(fields, "facilities", in.Facilities, MaxFacilitiesLen)

	capacity, err := strconv.Atoi(strings.TrimSpace(f.Capacity))
	switch {
	case err != nil:
		fields["capacity"] = "enter a whole number"
	case capacity < 1:
		fields["capacity"] = "must be at least 1"
	default:
		in.Capacity = capacity
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(f.Price), 64)
	switch {
	case err != nil:
		fields["price"] = "enter a number"
	case price < 0:
		fields["price"] = "must not be negative"
	default:
		in.Price = price
	}

	if len(fields) > 0 {
		return FeedbackInput{}, errors.WithStack(&ValidationError{Fields: fields})
	}
	return in, nil
}

func requireText(fields map[string]string, name, value string, limit int) {
	if value == "" {
		fields[name] = "this field is required"
		return
	}
	if utf8.RuneCountInString(value) > limit {
		fields[name] = "ensure this value has at most " + strconv.Itoa(limit) + " characters"
	}
}

// Features builds the churn model input from validated feedback.
func (in FeedbackInput) Features() ChurnFeatures {
	return ChurnFeatures{
		Timetable:  in.Timetable,
		Capacity:   in.Capacity,
		Time:       in.Duration,
		Facilities: in.Facilities,
		Price:      in.Price,
	}
}
