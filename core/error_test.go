package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorStringFormat(t *testing.T) {
	refStr := "error string"
	e := Errorf("%s", refStr)

	fileName := "error_test.go"
	lineNum := 11 // line number where error was formed

	expectedStr := fmt.Sprintf("%s [%s %d]", refStr, fileName, lineNum)

	if e.Error() != expectedStr {
		t.Fatalf("error string mismatch. Expected: %q, got %q", expectedStr,
			e.Error())
	}
	if e.Desc() != refStr {
		t.Fatalf("description mismatch. Expected: %q, got %q", refStr, e.Desc())
	}
}

func getError(msg string) *Error {
	return Errorf("%s", msg)
}

func TestErrorLocation(t *testing.T) {
	msg := "an error"
	e := getError(msg)

	if e.desc != msg {
		t.Fatal("Description did not match provided")
	}
	if e.file != "error_test.go" || e.line != 28 {
		t.Fatalf("unexpected location %s:%d", e.file, e.line)
	}
}

func TestErrIfKeyExists(t *testing.T) {
	if ErrIfKeyExists(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
	if ErrIfKeyExists(Errorf("Key not found")) != nil {
		t.Fatalf("key not found must be swallowed")
	}
	other := errors.New("connection refused")
	if ErrIfKeyExists(other) != other {
		t.Fatalf("unrelated errors must be returned")
	}
	if !IsKeyNotFound(Errorf("key not found! key: %v", "/a")) {
		t.Fatalf("expected key not found to be detected")
	}
}
