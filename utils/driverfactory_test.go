package utils

import (
	"testing"
)

func TestNewStateDriverValidConfig(t *testing.T) {
	drv, err := NewStateDriver(FakeNameStr, "mem://")
	defer func() { ReleaseStateDriver() }()
	if err != nil {
		t.Fatalf("failed to instantiate state driver. Error: %s", err)
	}
	if drv == nil {
		t.Fatalf("nil driver instance was returned")
	}

	got, err := GetStateDriver()
	if err != nil || got != drv {
		t.Fatalf("GetStateDriver returned %v, %v", got, err)
	}
}

func TestNewStateDriverInvalidConfig(t *testing.T) {
	_, err := NewStateDriver(FakeNameStr, "")
	if err == nil {
		t.Fatalf("state driver instantiation succeeded, expected to fail")
	}
}

func TestNewStateDriverInvalidDriverName(t *testing.T) {
	_, err := NewStateDriver("non-existent-name", "mem://")
	if err == nil {
		t.Fatalf("state driver instantiation succeeded, expected to fail")
	}
}

func TestNewStateDriverInvalidURL(t *testing.T) {
	_, err := NewStateDriver(EtcdNameStr, "xyz://127.0.0.1:2379")
	if err == nil {
		ReleaseStateDriver()
		t.Fatalf("state driver instantiation succeeded, expected to fail")
	}
	if _, err := GetStateDriver(); err == nil {
		t.Fatalf("failed driver was kept as the singleton")
	}
}

func TestNewStateDriverSecondCreate(t *testing.T) {
	_, err := NewStateDriver(FakeNameStr, "mem://")
	defer func() { ReleaseStateDriver() }()
	if err != nil {
		t.Fatalf("failed to instantiate state driver. Error: %s", err)
	}

	_, err = NewStateDriver(FakeNameStr, "mem://")
	if err == nil {
		t.Fatalf("second state driver instantiation succeeded, expected to fail")
	}
}

func TestGetStateDriverNonExistentStateDriver(t *testing.T) {
	_, err := GetStateDriver()
	if err == nil {
		t.Fatalf("getting state-driver succeeded, expected to fail")
	}
}
