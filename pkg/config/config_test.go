package config

import (
	"testing"
	"time"
)

func TestGetBool(t *testing.T) {
	if got := GetBool("HANGAR_TEST_BOOL_UNSET", true); !got {
		t.Fatal("unset key must return the fallback")
	}

	t.Setenv("HANGAR_TEST_BOOL", "false")
	if got := GetBool("HANGAR_TEST_BOOL", true); got {
		t.Fatal("explicit false must override a true fallback")
	}

	t.Setenv("HANGAR_TEST_BOOL", "notabool")
	if got := GetBool("HANGAR_TEST_BOOL", true); !got {
		t.Fatal("unparseable value must return the fallback")
	}
}

func TestGetSeconds(t *testing.T) {
	t.Setenv("HANGAR_TEST_SECONDS", "90")
	if got := GetSeconds("HANGAR_TEST_SECONDS", time.Second); got != 90*time.Second {
		t.Fatalf("GetSeconds = %v, want 90s", got)
	}
	if got := GetSeconds("HANGAR_TEST_SECONDS_UNSET", 10*time.Second); got != 10*time.Second {
		t.Fatalf("GetSeconds fallback = %v, want 10s", got)
	}
}
