package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ConsoleOutput writes log entries to stdout, with errors optionally going to stderr.
type ConsoleOutput struct {
	mu            sync.Mutex
	writer        io.Writer
	errorWriter   io.Writer
	errorToStderr bool
}

// ConsoleOutputOption is a function that configures a ConsoleOutput.
type ConsoleOutputOption func(*ConsoleOutput)

// WithStderr writes every entry to stderr.
func WithStderr() ConsoleOutputOption {
	return func(o *ConsoleOutput) {
		o.writer = os.Stderr
	}
}

// WithWriter writes every entry to w, including errors.
func WithWriter(w io.Writer) ConsoleOutputOption {
	return func(o *ConsoleOutput) {
		o.writer = w
		o.errorWriter = w
	}
}

// NewConsoleOutput creates a console output. Error and fatal entries go to stderr by default.
func NewConsoleOutput(options ...ConsoleOutputOption) *ConsoleOutput {
	o := &ConsoleOutput{
		writer:        os.Stdout,
		errorWriter:   os.Stderr,
		errorToStderr: true,
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Write writes the log entry to the console.
func (o *ConsoleOutput) Write(entry *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	w := o.writer
	if o.errorToStderr && entry.Level >= ErrorLevel {
		w = o.errorWriter
	}
	_, err := w.Write(formattedEntry)
	return err
}

// Close implements the Output interface but does nothing for console output.
func (o *ConsoleOutput) Close() error {
	return nil
}

// FileOutput appends log entries to a file and rotates it by size.
type FileOutput struct {
	mu          sync.Mutex
	file        *os.File
	filename    string
	maxSize     int64
	maxBackups  int
	currentSize int64
}

// FileOutputOption is a function that configures a FileOutput.
type FileOutputOption func(*FileOutput)

// WithMaxSize sets the size in bytes at which the file is rotated.
func WithMaxSize(maxBytes int64) FileOutputOption {
	return func(o *FileOutput) {
		o.maxSize = maxBytes
	}
}

// WithMaxBackups sets the number of rotated files to keep.
func WithMaxBackups(maxBackups int) FileOutputOption {
	return func(o *FileOutput) {
		o.maxBackups = maxBackups
	}
}

// NewFileOutput creates a new FileOutput with the given options.
func NewFileOutput(filename string, options ...FileOutputOption) *FileOutput {
	o := &FileOutput{
		filename:   filename,
		maxSize:    10 * 1024 * 1024,
		maxBackups: 5,
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Write writes the log entry to the file.
func (o *FileOutput) Write(entry *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		if err := o.openFile(); err != nil {
			return err
		}
	}

	if o.maxSize > 0 && o.currentSize > 0 && o.currentSize+int64(len(formattedEntry)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return err
		}
	}

	n, err := o.file.Write(formattedEntry)
	o.currentSize += int64(n)
	return err
}

// Close closes the file.
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}

func (o *FileOutput) openFile() error {
	if err := os.MkdirAll(filepath.Dir(o.filename), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(o.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	o.file = file
	o.currentSize = info.Size()
	return nil
}

func (o *FileOutput) rotate() error {
	if o.file != nil {
		if err := o.file.Close(); err != nil {
			return err
		}
		o.file = nil
	}

	backup := fmt.Sprintf("%s.%s", o.filename, time.Now().Format("2006-01-02T15-04-05.000"))
	if err := os.Rename(o.filename, backup); err != nil && !os.IsNotExist(err) {
		return err
	}
	if o.maxBackups > 0 {
		if err := o.pruneBackups(); err != nil {
			return err
		}
	}
	return o.openFile()
}

// pruneBackups removes the oldest rotated files beyond maxBackups. Backup names sort by time.
func (o *FileOutput) pruneBackups() error {
	files, err := filepath.Glob(o.filename + ".*")
	if err != nil {
		return err
	}
	if len(files) <= o.maxBackups {
		return nil
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-o.maxBackups] {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

// NullOutput discards all log entries.
type NullOutput struct{}

// NewNullOutput creates a new NullOutput.
func NewNullOutput() *NullOutput {
	return &NullOutput{}
}

func (o *NullOutput) Write(entry *Entry, formattedEntry []byte) error { return nil }

func (o *NullOutput) Close() error { return nil }
