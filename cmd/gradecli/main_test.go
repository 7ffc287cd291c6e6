package main

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classpilot-io/AI-grading/pkg/gradeclient"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

func TestRenderErrorPanelUsesServerMessage(t *testing.T) {
	var out bytes.Buffer
	renderErrorPanel(&out, &gradeclient.APIError{StatusCode: http.StatusConflict, Message: "grading already in progress"})

	require.Contains(t, out.String(), "Grading rejected (409)")
	require.Contains(t, out.String(), "grading already in progress")
}

func TestRevealPrintsOtherSubjectsImmediately(t *testing.T) {
	result, err := grading.Parse("history", `{"verdict":"pass"}`)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, reveal(context.Background(), &out, result))
	require.Contains(t, out.String(), `"verdict": "pass"`)
}

func TestRunRequiresSubmissionFlags(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{sessionPath: t.TempDir() + "/session.json"}, &out)
	require.Error(t, err)
}
