package grading

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedGradingJSON indicates model output that is not a valid grading result.
var ErrMalformedGradingJSON = errors.New("malformed grading json")

const marksTolerance = 1e-6

//go:embed schema/*.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemas    map[Subject]*jsonschema.Schema
	schemaErr  error
)

// Status is the per-question verdict.
type Status string

const (
	StatusCorrect   Status = "Correct"
	StatusIncorrect Status = "Incorrect"
)

// FlexString holds a JSON string or number verbatim. Models emit marks both ways.
type FlexString string

// UnmarshalJSON accepts strings, numbers and null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", trimmed)
	}
	*f = FlexString(n.String())
	return nil
}

// Float parses the value as a number.
func (f FlexString) Float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
}

// PartGrade grades one sub-part of a question.
type PartGrade struct {
	QuestionText  string     `json:"question_text"`
	AnswerText    string     `json:"answer_text"`
	CorrectAnswer *string    `json:"correct_answer"`
	AwardedMarks  FlexString `json:"awarded_marks"`
	TotalMarks    FlexString `json:"total_marks"`
	Status        Status     `json:"status"`
}

// QuestionGrade grades one question of a mathematics paper.
type QuestionGrade struct {
	QuestionNumber FlexString  `json:"question_number"`
	QuestionText   string      `json:"question_text"`
	AnswerText     string      `json:"answer_text"`
	CorrectAnswer  *string     `json:"correct_answer"`
	AwardedMarks   FlexString  `json:"awarded_marks"`
	TotalMarks     FlexString  `json:"total_marks"`
	Status         Status      `json:"status"`
	Parts          []PartGrade `json:"parts"`
}

// MathResult is the mathematics variant of a grading result.
type MathResult struct {
	Grades                 []QuestionGrade `json:"grades"`
	SubmissionAwardedMarks FlexString      `json:"submission_awarded_marks"`
	SubmissionTotalMarks   FlexString      `json:"submission_total_marks"`
}

// EnglishResult is the english variant of a grading result.
type EnglishResult struct {
	SubmissionAwardedMarks FlexString `json:"submission_awarded_marks"`
	SubmissionTotalMarks   FlexString `json:"submission_total_marks"`
	Summary                string     `json:"summary"`
	DetailedFeedback       string     `json:"detailed_feedback"`
}

// Result is a grading result tagged with the subject that determined its shape.
// Exactly one of Math, English or Other is set.
type Result struct {
	Subject Subject
	Math    *MathResult
	English *EnglishResult
	// Other holds the decoded document for subjects without a typed shape.
	Other any
	// Raw is the fence-stripped JSON document.
	Raw json.RawMessage
}

// Parse strips code fences from model output and decodes it according to subject.
// Recognised subjects are validated against their schema and mark invariants; any other
// subject decodes into Result.Other without validation.
func Parse(subject string, text string) (Result, error) {
	body := StripCodeFence(text)
	if body == "" {
		return Result{}, fmt.Errorf("%w: empty document", ErrMalformedGradingJSON)
	}

	decoder := json.NewDecoder(strings.NewReader(body))
	decoder.UseNumber()

	var document any
	if err := decoder.Decode(&document); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedGradingJSON, err)
	}
	if decoder.More() {
		return Result{}, fmt.Errorf("%w: trailing data after document", ErrMalformedGradingJSON)
	}

	raw := json.RawMessage(body)

	parsed, err := ParseSubject(subject)
	if err != nil {
		return Result{
			Subject: Subject(strings.ToLower(strings.TrimSpace(subject))),
			Other:   document,
			Raw:     raw,
		}, nil
	}

	if err := validateSchema(parsed, document); err != nil {
		return Result{}, err
	}

	result := Result{Subject: parsed, Raw: raw}
	switch parsed {
	case SubjectMathematics:
		var graded MathResult
		if err := json.Unmarshal(raw, &graded); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedGradingJSON, err)
		}
		if err := graded.validate(); err != nil {
			return Result{}, err
		}
		result.Math = &graded
	case SubjectEnglish:
		var graded EnglishResult
		if err := json.Unmarshal(raw, &graded); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedGradingJSON, err)
		}
		if err := checkMarks("submission", graded.SubmissionAwardedMarks, graded.SubmissionTotalMarks); err != nil {
			return Result{}, err
		}
		result.English = &graded
	}

	return result, nil
}

// AwardedMarks returns the submission-level awarded marks, if the shape has them.
func (r Result) AwardedMarks() FlexString {
	switch {
	case r.Math != nil:
		return r.Math.SubmissionAwardedMarks
	case r.English != nil:
		return r.English.SubmissionAwardedMarks
	default:
		return ""
	}
}

// TotalMarks returns the submission-level total marks, if the shape has them.
func (r Result) TotalMarks() FlexString {
	switch {
	case r.Math != nil:
		return r.Math.SubmissionTotalMarks
	case r.English != nil:
		return r.English.SubmissionTotalMarks
	default:
		return ""
	}
}

func (m MathResult) validate() error {
	if err := checkMarks("submission", m.SubmissionAwardedMarks, m.SubmissionTotalMarks); err != nil {
		return err
	}

	var sum float64
	for _, grade := range m.Grades {
		label := "question " + string(grade.QuestionNumber)
		if err := checkMarks(label, grade.AwardedMarks, grade.TotalMarks); err != nil {
			return err
		}
		for i, part := range grade.Parts {
			if err := checkMarks(fmt.Sprintf("%s part %d", label, i+1), part.AwardedMarks, part.TotalMarks); err != nil {
				return err
			}
		}

		awarded, _ := grade.AwardedMarks.Float()
		sum += awarded
	}

	total, _ := m.SubmissionAwardedMarks.Float()
	if math.Abs(sum-total) > marksTolerance {
		return fmt.Errorf("%w: question marks sum to %g but submission_awarded_marks is %s", ErrMalformedGradingJSON, sum, m.SubmissionAwardedMarks)
	}

	return nil
}

func checkMarks(label string, awarded, total FlexString) error {
	a, err := awarded.Float()
	if err != nil {
		return fmt.Errorf("%w: %s awarded marks %q are not numeric", ErrMalformedGradingJSON, label, awarded)
	}
	t, err := total.Float()
	if err != nil {
		return fmt.Errorf("%w: %s total marks %q are not numeric", ErrMalformedGradingJSON, label, total)
	}
	if a > t+marksTolerance {
		return fmt.Errorf("%w: %s awarded marks %s exceed total %s", ErrMalformedGradingJSON, label, awarded, total)
	}
	return nil
}

func validateSchema(subject Subject, document any) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}

	schema, ok := schemas[subject]
	if !ok {
		return fmt.Errorf("no schema registered for subject %q", subject)
	}

	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedGradingJSON, err)
	}
	return nil
}

func loadSchemas() {
	files := map[Subject]string{
		SubjectMathematics: "schema/mathematics.schema.json",
		SubjectEnglish:     "schema/english.schema.json",
	}

	schemas = make(map[Subject]*jsonschema.Schema, len(files))
	for subject, file := range files {
		data, err := schemaFS.ReadFile(file)
		if err != nil {
			schemaErr = fmt.Errorf("read %s: %w", file, err)
			return
		}

		compiled, err := jsonschema.CompileString(file, string(data))
		if err != nil {
			schemaErr = fmt.Errorf("compile %s: %w", file, err)
			return
		}
		schemas[subject] = compiled
	}
}
