package cfg

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const pfx = "THEMEHUB_TEST_"

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

func newFlagSet(t *testing.T, args []string) (*flag.FlagSet, *App) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := &App{}
	Register(fs, c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return fs, c
}

// validApp is the smallest config Validate accepts.
func validApp(t *testing.T) App {
	t.Helper()
	_, c := newFlagSet(t, []string{"-jwt-secret", "s3cret", "-records-backend", "memory"})
	return *c
}

func TestRegister_Defaults(t *testing.T) {
	_, c := newFlagSet(t, nil)

	if c.HTTPPort != 8080 || c.AdminPort != 9000 {
		t.Errorf("ports = %d/%d", c.HTTPPort, c.AdminPort)
	}
	if c.RootFolder != "theme_manager_Store" || c.CurrentFolder != "current_theme" {
		t.Errorf("folders = %q/%q", c.RootFolder, c.CurrentFolder)
	}
	if c.PublicBaseURL != "https://storage.googleapis.com" {
		t.Errorf("PublicBaseURL = %q", c.PublicBaseURL)
	}
	if c.StoreConcurrency != 16 || c.StoreRetries != 0 || c.StoreTimeout != 30*time.Second {
		t.Errorf("store defaults = %d/%d/%s", c.StoreConcurrency, c.StoreRetries, c.StoreTimeout)
	}
	if c.TokenTTL != 168*time.Hour {
		t.Errorf("TokenTTL = %s", c.TokenTTL)
	}
	if c.AllowEmptyTheme {
		t.Error("AllowEmptyTheme should default to false")
	}
	if c.StoreBackend != StoreGCS || c.RecordsBackend != RecordsMongo {
		t.Errorf("backends = %s/%s", c.StoreBackend, c.RecordsBackend)
	}
}

func TestFillFromEnv(t *testing.T) {
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"STORE_CONCURRENCY", "4")
	t.Setenv(pfx+"ALLOW_EMPTY_THEME", "true")
	t.Setenv(pfx+"SWAP_TIMEOUT", "90s")

	fs, c := newFlagSet(t, nil)
	FillFromEnv(fs, pfx, nil)

	if c.HTTPPort != 8088 || c.StoreConcurrency != 4 || !c.AllowEmptyTheme || c.SwapTimeout != 90*time.Second {
		t.Fatalf("env not applied: %+v", c)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	t.Setenv(pfx+"HTTP_PORT", "7777")

	var logged []string
	fs, c := newFlagSet(t, []string{"-http-port", "8181"})
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 8181 {
		t.Fatalf("HTTPPort = %d, want cli value", c.HTTPPort)
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "overrides env") {
		t.Fatalf("logged = %q", logged)
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	t.Setenv(pfx+"HTTP_PORT", "not-a-number")

	var logged []string
	fs, c := newFlagSet(t, nil)
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})
	if c.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want default", c.HTTPPort)
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "ignoring invalid env") {
		t.Fatalf("logged = %q", logged)
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "themehub.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFile_Precedence(t *testing.T) {
	path := writeYAML(t, `
http-port: 8200
admin-port: 9200
store-concurrency: 8
cors-origins:
  - https://dash.example.com
  - https://admin.example.com
swap-timeout: 2m
`)
	t.Setenv(pfx+"ADMIN_PORT", "9300")

	fs, c := newFlagSet(t, []string{"-http-port", "8100"})
	FillFromEnv(fs, pfx, nil)
	if err := LoadFile(fs, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if c.HTTPPort != 8100 {
		t.Errorf("cli should win, HTTPPort = %d", c.HTTPPort)
	}
	if c.AdminPort != 9300 {
		t.Errorf("env should beat file, AdminPort = %d", c.AdminPort)
	}
	if c.StoreConcurrency != 8 || c.SwapTimeout != 2*time.Minute {
		t.Errorf("file values not applied: %d %s", c.StoreConcurrency, c.SwapTimeout)
	}
	if got := c.Origins(); len(got) != 2 || got[1] != "https://admin.example.com" {
		t.Errorf("Origins = %q", got)
	}
}

func TestLoadFile_UnknownKeyAndBadValue(t *testing.T) {
	path := writeYAML(t, "no-such-flag: 1\nhttp-port: eighty\n")
	fs, _ := newFlagSet(t, nil)
	err := LoadFile(fs, path)
	wantErrContains(t, err, `unknown key "no-such-flag"`)
	wantErrContains(t, err, "http-port")
}

func TestLoadFile_EmptyPathIsNoop(t *testing.T) {
	fs, _ := newFlagSet(t, nil)
	if err := LoadFile(fs, ""); err != nil {
		t.Fatal(err)
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validApp(t)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := validApp(t)
	c.HTTPPort = 0
	c.StoreBackend = "ftp"
	c.StoreConcurrency = 0
	c.RootFolder = "a/b"
	c.JWTSecretSSMParam = "/themehub/jwt"
	c.RecordsBackend = RecordsMongo

	err := Validate(c)
	wantErrContains(t, err, "HTTP_PORT")
	wantErrContains(t, err, "STORE_BACKEND")
	wantErrContains(t, err, "STORE_CONCURRENCY")
	wantErrContains(t, err, "ROOT_FOLDER")
	wantErrContains(t, err, "exactly one of JWT_SECRET")
	wantErrContains(t, err, "MONGO_URI")
}

func TestValidate_TracingNeedsHostPort(t *testing.T) {
	c := validApp(t)
	c.EnableTracing = true
	for _, ep := range []string{"http://collector", "http://collector:4317", "collector", ":4317", "collector:otlp", "collector:0"} {
		c.OTLPEndpoint = ep
		wantErrContains(t, Validate(c), "OTLP_ENDPOINT must be host:port")
	}

	c.OTLPEndpoint = "otel-collector.monitoring:4317"
	if err := Validate(c); err != nil {
		t.Fatalf("Validate(%q): %v", c.OTLPEndpoint, err)
	}
}

func TestEnvKey(t *testing.T) {
	if got := EnvKey("THEMEHUB_", "store-timeout"); got != "THEMEHUB_STORE_TIMEOUT" {
		t.Fatalf("EnvKey = %q", got)
	}
}

func TestValidateStorage_IgnoresServerSettings(t *testing.T) {
	c := validApp(t)
	c.JWTSecret = ""
	c.HTTPPort = 0
	if err := ValidateStorage(c); err != nil {
		t.Fatalf("ValidateStorage: %v", err)
	}
	c.RecordsBackend = "redis"
	wantErrContains(t, ValidateStorage(c), "RECORDS_BACKEND")
}
