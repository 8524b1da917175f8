package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{types.NewValidationError("bad"), ExitUsage},
		{&client.APIError{StatusCode: 401, Category: types.CategoryUnauthorized}, ExitUnauthorized},
		{&client.APIError{StatusCode: 403, Category: types.CategoryForbidden}, ExitUnauthorized},
		{&client.APIError{StatusCode: 404, Category: types.CategoryNotFound}, ExitNotFound},
		{&client.APIError{StatusCode: 409, Category: types.CategoryConflict}, ExitConflict},
		{&client.APIError{StatusCode: 503, Category: types.CategoryUnavailable}, ExitUnavailable},
		{errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "error %v", tt.err)
	}
}

func TestPrintError(t *testing.T) {
	EnableColor(false)
	defer EnableColor(true)

	var buf bytes.Buffer
	PrintError(&buf, &client.APIError{StatusCode: 409, Category: types.CategoryConflict, Message: "ambiguous", EntryIDs: []string{"a", "b"}})
	out := buf.String()
	assert.Contains(t, out, "Error (conflict): ambiguous")
	assert.Contains(t, out, "  - a\n  - b\n")

	buf.Reset()
	PrintError(&buf, &client.APIError{StatusCode: 401, Category: types.CategoryUnauthorized, Message: "expired"})
	assert.Contains(t, buf.String(), "configurine login")

	buf.Reset()
	PrintError(&buf, errors.New("dial failed"))
	assert.Equal(t, "Error: dial failed\n", buf.String())
}

func TestFileErrorYAML(t *testing.T) {
	EnableColor(false)
	defer EnableColor(true)

	data := []byte("name: db\nvalue: [1, 2\ntags: []\n")
	var v interface{}
	err := yaml.Unmarshal(data, &v)
	if err == nil {
		t.Fatalf("expected a yaml error")
	}

	fe := NewFileError("entry.yaml", data)
	line := fe.LineNumber(err)
	assert.Greater(t, line, 0)

	var buf bytes.Buffer
	fe.Print(&buf, err)
	assert.Contains(t, buf.String(), "entry.yaml")
	assert.Contains(t, buf.String(), "> ")
}

func TestFileErrorJSON(t *testing.T) {
	data := []byte("{\n  \"name\": \"db\",\n  \"value\": ,\n}")
	var v interface{}
	err := json.Unmarshal(data, &v)
	if err == nil {
		t.Fatalf("expected a json error")
	}
	assert.Equal(t, 3, NewFileError("entry.json", data).LineNumber(err))
}
