package grading

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedSubject is returned for any subject without a grading template.
var ErrUnsupportedSubject = errors.New("unsupported subject")

// Subject tags an assignment and selects both the prompt and the result shape.
type Subject string

const (
	SubjectMathematics Subject = "mathematics"
	SubjectEnglish     Subject = "english"
)

// PromptTemplate is the fixed instruction sent to the model for a subject.
type PromptTemplate struct {
	Subject     Subject
	Instruction string
}

// ParseSubject normalises a subject tag, case-insensitively.
func ParseSubject(raw string) (Subject, error) {
	switch Subject(strings.ToLower(strings.TrimSpace(raw))) {
	case SubjectMathematics:
		return SubjectMathematics, nil
	case SubjectEnglish:
		return SubjectEnglish, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSubject, raw)
	}
}

// SelectPrompt maps a subject to its grading instructions.
func SelectPrompt(subject string) (PromptTemplate, error) {
	parsed, err := ParseSubject(subject)
	if err != nil {
		return PromptTemplate{}, err
	}

	switch parsed {
	case SubjectMathematics:
		return PromptTemplate{Subject: parsed, Instruction: mathematicsPrompt}, nil
	default:
		return PromptTemplate{Subject: parsed, Instruction: englishPrompt}, nil
	}
}

const mathematicsPrompt = `You are an experienced mathematics teacher grading a student's handwritten or typed answer sheet.
The attached file contains the student's work. Identify every question and sub-part, read the student's answer and working,
decide whether it is correct, and award marks.

Respond with a single JSON object and nothing else, using exactly this shape:
{
  "grades": [
    {
      "question_number": "1",
      "question_text": "<question as written>",
      "answer_text": "<student's answer>",
      "correct_answer": "<expected answer, or null if unknown>",
      "awarded_marks": "<marks awarded>",
      "total_marks": "<marks available>",
      "status": "Correct" or "Incorrect",
      "parts": [
        {
          "question_text": "<sub-part>",
          "answer_text": "<student's answer>",
          "correct_answer": "<expected answer, or null>",
          "awarded_marks": "<marks awarded>",
          "total_marks": "<marks available>",
          "status": "Correct" or "Incorrect"
        }
      ]
    }
  ],
  "submission_awarded_marks": "<sum of awarded_marks over all questions>",
  "submission_total_marks": "<sum of total_marks over all questions>"
}

Rules:
- awarded_marks must never exceed total_marks.
- submission_awarded_marks must equal the sum of the per-question awarded_marks.
- Use an empty "parts" array when a question has no sub-parts.
- Give partial credit for correct working where appropriate.`

const englishPrompt = `You are an experienced English teacher marking a student's written response.
The attached file contains the student's work. Assess content, organisation, grammar, vocabulary and spelling.

Respond with a single JSON object and nothing else, using exactly this shape:
{
  "submission_awarded_marks": "<score out of 100>",
  "submission_total_marks": "100",
  "summary": "<two or three sentence Markdown summary of the work>",
  "detailed_feedback": "<Markdown feedback, one point per line>"
}

Rules:
- submission_awarded_marks must be between 0 and 100.
- Put each feedback point on its own line in detailed_feedback.`
