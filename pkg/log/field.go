package log

import (
	"encoding/json"
	"time"
)

// Field represents a structured log field with a key and value
type Field struct {
	Key   string
	Value interface{}
}

// F creates a log field with the provided key and value
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Str(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Time(key string, value time.Time) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field rendered as a Go duration string.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Strs creates a string list field.
func Strs(key string, values []string) Field {
	return Field{Key: key, Value: values}
}

// Any creates a field for any value (alias for F)
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Json creates a field holding the JSON encoding of value.
func Json(key string, value interface{}) Field {
	b, err := json.Marshal(value)
	if err != nil {
		return Field{Key: key, Value: err.Error()}
	}
	return Field{Key: key, Value: string(b)}
}

// Component creates a component field
func Component(value string) Field {
	return Field{Key: ComponentKey, Value: value}
}

// RequestID creates a request ID field
func RequestID(value string) Field {
	return Field{Key: RequestIDKey, Value: value}
}

// Client creates a field naming the calling client.
func Client(name string) Field {
	return Field{Key: ClientKey, Value: name}
}

// Op creates an operation field.
func Op(name string) Field {
	return Field{Key: OperationKey, Value: name}
}
