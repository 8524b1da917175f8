package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/types"
)

// Exit codes by error category.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitUsage        = 2
	ExitUnauthorized = 3
	ExitNotFound     = 4
	ExitConflict     = 5
	ExitUnavailable  = 6
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch client.Category(err) {
	case types.CategoryValidation:
		return ExitUsage
	case types.CategoryUnauthorized, types.CategoryForbidden:
		return ExitUnauthorized
	case types.CategoryNotFound:
		return ExitNotFound
	case types.CategoryConflict:
		return ExitConflict
	case types.CategoryUnavailable:
		return ExitUnavailable
	default:
		return ExitError
	}
}

// PrintError writes err with its category and, for resolution conflicts, the tied entries.
func PrintError(w io.Writer, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(w, "%s %s\n", ErrorColor.Sprintf("Error (%s):", apiErr.Category), apiErr.Message)
		if len(apiErr.EntryIDs) > 0 {
			fmt.Fprintln(w, WarningColor.Sprint("Entries with equal relevance:"))
			for _, id := range apiErr.EntryIDs {
				fmt.Fprintf(w, "  - %s\n", id)
			}
		}
		if hint := hintFor(apiErr.Category); hint != "" {
			fmt.Fprintln(w, DimColor.Sprint(hint))
		}
		return
	}
	fmt.Fprintf(w, "%s %v\n", ErrorColor.Sprint("Error:"), err)
}

func hintFor(category string) string {
	switch category {
	case types.CategoryUnauthorized:
		return "Hint: run 'configurine login' to get a fresh token"
	case types.CategoryForbidden:
		return "Hint: this operation needs an admin client or ownership of the entry"
	case types.CategoryUnavailable:
		return "Hint: the server cannot reach its store; try again shortly"
	default:
		return ""
	}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// FileError renders a parse error in an input file with the offending line.
type FileError struct {
	FileName     string
	Data         []byte
	ContextLines int
}

// NewFileError creates a FileError showing one line of context on each side.
func NewFileError(filename string, data []byte) *FileError {
	return &FileError{FileName: filename, Data: data, ContextLines: 1}
}

// LineNumber extracts the line number from a yaml or json decoder error, or 0.
func (f *FileError) LineNumber(err error) int {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		offset := min(int(syntaxErr.Offset), len(f.Data))
		return bytes.Count(f.Data[:offset], []byte("\n")) + 1
	}
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// Print writes the error followed by the surrounding lines of the file.
func (f *FileError) Print(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s: %v\n", ErrorColor.Sprint("Error:"), InfoColor.Sprint(f.FileName), err)
	line := f.LineNumber(err)
	if line <= 0 {
		return
	}
	lines := strings.Split(string(f.Data), "\n")
	from := max(1, line-f.ContextLines)
	to := min(len(lines), line+f.ContextLines)
	for i := from; i <= to; i++ {
		marker := "  "
		text := lines[i-1]
		if i == line {
			marker = ErrorColor.Sprint("> ")
			text = ErrorColor.Sprint(text)
		}
		fmt.Fprintf(w, "%s%s | %s\n", marker, LineColor.Sprintf("%4d", i), text)
	}
}
