// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"within range", 5, 1, 10, false},
		{"at min", 1, 1, 10, false},
		{"at max", 10, 1, 10, false},
		{"below min", 0, 1, 10, true},
		{"above max", 11, 1, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("field", tt.value, tt.min, tt.max)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Range(%d, %d, %d) valid=%v, wantErr=%v", tt.value, tt.min, tt.max, v.IsValid(), tt.wantErr)
			}
		})
	}
}

func TestValidator_FloatRange(t *testing.T) {
	v := New()
	v.FloatRange("rate", 0.5, 0, 1)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.FloatRange("rate", 1.5, 0, 1)
	if v.IsValid() {
		t.Fatal("expected error for out-of-range float")
	}
}

func TestValidator_MinDuration(t *testing.T) {
	v := New()
	v.MinDuration("tick", time.Second, 100*time.Millisecond)
	v.MinDuration("tick", 10*time.Millisecond, 100*time.Millisecond)
	if len(v.Errors()) != 1 {
		t.Fatalf("expected 1 error, got %d", len(v.Errors()))
	}
}

func TestValidator_FileNamePart(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"segment_", false},
		{"", false},
		{"cam-front.", false},
		{"../evil", true},
		{"a/b", true},
		{`a\b`, true},
		{"..", true},
	}
	for _, tt := range tests {
		v := New()
		v.FileNamePart("prefix", tt.value)
		if tt.wantErr == v.IsValid() {
			t.Errorf("FileNamePart(%q) valid=%v, wantErr=%v", tt.value, v.IsValid(), tt.wantErr)
		}
	}
}

func TestValidator_HostPort(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{":8080", false},
		{"127.0.0.1:6379", false},
		{"localhost:0", true},
		{"localhost", true},
		{"host:99999", true},
	}
	for _, tt := range tests {
		v := New()
		v.HostPort("addr", tt.value)
		if tt.wantErr == v.IsValid() {
			t.Errorf("HostPort(%q) valid=%v, wantErr=%v", tt.value, v.IsValid(), tt.wantErr)
		}
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	for value, wantErr := range map[string]bool{
		":8080":         false,
		"127.0.0.1:0":   false,
		"localhost":     true,
		"[::1]:70000":   true,
		"0.0.0.0:http2": true,
	} {
		v := New()
		v.ListenAddr("api.listen", value)
		if wantErr == v.IsValid() {
			t.Errorf("ListenAddr(%q) valid=%v, wantErr=%v", value, v.IsValid(), wantErr)
		}
	}
}

func TestValidator_OneOf(t *testing.T) {
	v := New()
	v.OneOf("exporter", "grpc", []string{"grpc", "http"})
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.OneOf("exporter", "kafka", []string{"grpc", "http"})
	if v.IsValid() {
		t.Fatal("expected error")
	}
}

func TestValidator_WritableDirectory(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "videos")
		v := New()
		v.WritableDirectory("out_dir", dir)
		if !v.IsValid() {
			t.Fatalf("unexpected error: %v", v.Err())
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory not created: %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Fatalf("write probe left behind: %v", entries)
		}
	})

	t.Run("file is not a directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		v := New()
		v.WritableDirectory("out_dir", file)
		if v.IsValid() {
			t.Fatal("expected error for regular file")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		v := New()
		v.WritableDirectory("out_dir", "  ")
		if v.IsValid() {
			t.Fatal("expected error for empty path")
		}
	})
}

func TestValidationError_Aggregates(t *testing.T) {
	v := New()
	v.Positive("fps", 0)
	v.NonNegative("pre_s", -1)
	v.NotEmpty("device", "")

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(verr.Errors()))
	}
	for _, field := range []string{"fps", "pre_s", "device"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error message missing field %s: %s", field, err)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug":   LogLevelDebug,
		" INFO ":  LogLevelInfo,
		"Trace":   LogLevelTrace,
		"warn":    LogLevelWarn,
		"error\n": LogLevelError,
	} {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"verbose", "", "warning"} {
		if _, err := ParseLogLevel(in); !errors.Is(err, ErrInvalidLogLevel) {
			t.Errorf("ParseLogLevel(%q) err = %v, want ErrInvalidLogLevel", in, err)
		}
	}
}
