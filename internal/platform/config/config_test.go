package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("VLCSYNC_TEST_STR", "value")
	if got := GetEnv("VLCSYNC_TEST_STR", "fb"); got != "value" {
		t.Errorf("got %q", got)
	}
	if got := GetEnv("VLCSYNC_TEST_UNSET", "fb"); got != "fb" {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("VLCSYNC_TEST_INT", "12")
	t.Setenv("VLCSYNC_TEST_BAD", "twelve")
	if got := GetEnvInt("VLCSYNC_TEST_INT", 1); got != 12 {
		t.Errorf("got %d", got)
	}
	if got := GetEnvInt("VLCSYNC_TEST_BAD", 1); got != 1 {
		t.Errorf("invalid int should fall back, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("VLCSYNC_TEST_YES", "Yes")
	t.Setenv("VLCSYNC_TEST_ZERO", "0")
	t.Setenv("VLCSYNC_TEST_JUNK", "maybe")
	if !GetEnvBool("VLCSYNC_TEST_YES", false) {
		t.Error("Yes should be true")
	}
	if GetEnvBool("VLCSYNC_TEST_ZERO", true) {
		t.Error("0 should be false")
	}
	if !GetEnvBool("VLCSYNC_TEST_JUNK", true) {
		t.Error("junk should fall back")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("VLCSYNC_TEST_DUR", "75ms")
	t.Setenv("VLCSYNC_TEST_SECS", "4")
	t.Setenv("VLCSYNC_TEST_NEG", "-1s")
	if got := GetEnvDuration("VLCSYNC_TEST_DUR", time.Second); got != 75*time.Millisecond {
		t.Errorf("got %v", got)
	}
	if got := GetEnvDuration("VLCSYNC_TEST_SECS", time.Second); got != 4*time.Second {
		t.Errorf("bare integer should be seconds, got %v", got)
	}
	if got := GetEnvDuration("VLCSYNC_TEST_NEG", time.Second); got != time.Second {
		t.Errorf("negative should fall back, got %v", got)
	}
}

func TestFromEnv_defaults(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("MAX_DIAL_ATTEMPTS", "0")
	s := FromEnv()
	if s.PollInterval != 50*time.Millisecond {
		t.Errorf("PollInterval = %v", s.PollInterval)
	}
	if s.MaxDialAttempts != 1 {
		t.Errorf("MaxDialAttempts should be clamped to 1, got %d", s.MaxDialAttempts)
	}
}

func TestFromEnv_ws_allowed_origins(t *testing.T) {
	t.Setenv("WS_ALLOWED_ORIGINS", " http://a.local:3000, ,https://b.local ")
	got := FromEnv().WSAllowedOrigins
	want := []string{"http://a.local:3000", "https://b.local"}
	if len(got) != len(want) {
		t.Fatalf("WSAllowedOrigins = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("WSAllowedOrigins[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoad_reads_dotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("VLCSYNC_FROM_DOTENV=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("VLCSYNC_FROM_DOTENV") })

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("VLCSYNC_FROM_DOTENV"); got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestParsePlayers(t *testing.T) {
	t.Run("valid_with_defaults", func(t *testing.T) {
		p, err := ParsePlayers([]byte(`
vlc:
  binary: /usr/bin/vlc
  start_port: 4212
instances:
  - "--fullscreen {filename}"
  - "--no-audio {filename}"
`))
		if err != nil {
			t.Fatalf("ParsePlayers: %v", err)
		}
		if p.VLC.Listen != DefaultListen {
			t.Errorf("Listen = %q, want default", p.VLC.Listen)
		}
		if len(p.Instances) != 2 || p.Instances[1] != "--no-audio {filename}" {
			t.Errorf("Instances = %v", p.Instances)
		}
	})

	t.Run("missing_binary", func(t *testing.T) {
		_, err := ParsePlayers([]byte("vlc:\n  start_port: 4212\ninstances: [a]\n"))
		if err == nil || !strings.Contains(err.Error(), "binary") {
			t.Errorf("expected binary error, got %v", err)
		}
	})

	t.Run("no_instances", func(t *testing.T) {
		_, err := ParsePlayers([]byte("vlc:\n  binary: vlc\n  start_port: 4212\n"))
		if err == nil {
			t.Error("expected error for empty instance list")
		}
	})

	t.Run("port_overflow", func(t *testing.T) {
		_, err := ParsePlayers([]byte("vlc:\n  binary: vlc\n  start_port: 65535\ninstances: [a, b]\n"))
		if err == nil {
			t.Error("expected error when ports run past 65535")
		}
	})

	t.Run("bad_yaml", func(t *testing.T) {
		_, err := ParsePlayers([]byte("vlc: [unclosed"))
		if err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestLoadPlayers_missing_file(t *testing.T) {
	_, err := LoadPlayers(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
