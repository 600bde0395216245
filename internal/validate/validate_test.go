package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/hangar-sh/hangar/internal/apperr"
)

func TestProjectName(t *testing.T) {
	valid := []string{"a", "app", "my-app-2", strings.Repeat("a", 63)}
	for _, name := range valid {
		if err := ProjectName(name); err != nil {
			t.Fatalf("%q should be valid: %v", name, err)
		}
	}
	invalid := []string{"", "-app", "app-", "my_app", "my app", "app$", strings.Repeat("a", 64)}
	for _, name := range invalid {
		err := ProjectName(name)
		if err == nil {
			t.Fatalf("%q should be rejected", name)
		}
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("%q: expected validation kind, got %v", name, apperr.KindOf(err))
		}
	}
}

func TestImageRef(t *testing.T) {
	valid := []string{"nginx", "nginx:1.25", "ghcr.io/acme/app:latest", "registry.example.com:5000/a/b@sha256:abc"}
	for _, ref := range valid {
		if err := ImageRef(ref); err != nil {
			t.Fatalf("%q should be valid: %v", ref, err)
		}
	}
	invalid := []string{"", "nginx latest", "img$(whoami)", "img`id`", `img\evil`, `img"x"`, "img'x'"}
	for _, ref := range invalid {
		if ImageRef(ref) == nil {
			t.Fatalf("%q should be rejected", ref)
		}
	}
}

func TestVolumePath(t *testing.T) {
	valid := []string{"/data", "/var/lib/app", "/srv/files"}
	for _, p := range valid {
		if err := VolumePath(p); err != nil {
			t.Fatalf("%q should be valid: %v", p, err)
		}
	}
	invalid := []string{"", "data", "/data/../etc", "/data/", "/da ta", "/d$ata"}
	for _, p := range invalid {
		if VolumePath(p) == nil {
			t.Fatalf("%q should be rejected", p)
		}
	}
}

func TestEnvVarName(t *testing.T) {
	valid := []string{"APP_MODE", "_private", "DB2_HOST", "x"}
	for _, name := range valid {
		if err := EnvVarName(name); err != nil {
			t.Fatalf("%q should be valid: %v", name, err)
		}
	}
	invalid := []string{"", "2LEGIT", "WITH-DASH", "WITH SPACE", "ÜMLAUT"}
	for _, name := range invalid {
		if EnvVarName(name) == nil {
			t.Fatalf("%q should be rejected", name)
		}
	}
}

func TestEnvVarNameReservedCarriesName(t *testing.T) {
	err := EnvVarName("PATH")
	if err == nil {
		t.Fatalf("PATH should be rejected")
	}
	var e *apperr.Error
	if !errors.As(err, &e) || e.Report != "PATH" {
		t.Fatalf("rejected variable name not carried in error payload: %+v", err)
	}
}
