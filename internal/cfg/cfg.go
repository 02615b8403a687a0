package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/keithlinneman/themehub/internal/log"
)

const (
	StoreGCS    = "gcs"
	StoreS3     = "s3"
	StoreMemory = "memory"

	RecordsMongo  = "mongo"
	RecordsSQLite = "sqlite"
	RecordsMemory = "memory"
)

type App struct {
	ConfigFile string

	// logging
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// listeners
	HTTPPort       int
	AdminPort      int
	CORSOrigins    string
	MaxUploadBytes int64
	DrainPeriod    time.Duration

	// ops
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	// object storage
	StoreBackend       string
	GCSCredentialsFile string
	GCSEndpoint        string
	S3Region           string
	StoreTimeout       time.Duration
	StoreConcurrency   int
	StoreRetries       int

	// records
	RecordsBackend string
	MongoURI       string
	MongoDatabase  string
	SQLitePath     string

	// themes
	RootFolder      string
	CurrentFolder   string
	PublicBaseURL   string
	SwapTimeout     time.Duration
	AllowEmptyTheme bool

	// auth
	JWTSecret          string
	JWTSecretSSMParam  string
	JWTSecretKMSBlob   string
	TokenTTL           time.Duration
	AllowOpenBootstrap bool
	AuthRateLimit      float64
	AuthRateBurst      int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.ConfigFile, "config", "", "optional YAML file of flag-name: value pairs")

	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.CORSOrigins, "cors-origins", "", "comma separated origins allowed to call the API from a browser")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 32<<20, "largest accepted theme file upload")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 15*time.Second, "time between failing readiness and closing listeners on shutdown")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.StoreBackend, "store-backend", StoreGCS, "object store: gcs|s3|memory")
	fs.StringVar(&c.GCSCredentialsFile, "gcs-credentials-file", "", "service account JSON for GCS (default: application default credentials)")
	fs.StringVar(&c.GCSEndpoint, "gcs-endpoint", "", "override GCS endpoint, e.g. an emulator")
	fs.StringVar(&c.S3Region, "s3-region", "", "override AWS region for the s3 backend")
	fs.DurationVar(&c.StoreTimeout, "store-timeout", 30*time.Second, "per-call object store timeout")
	fs.IntVar(&c.StoreConcurrency, "store-concurrency", 16, "max concurrent object operations per batch (1..256)")
	fs.IntVar(&c.StoreRetries, "store-retries", 0, "retries for failed object store calls (0..10)")

	fs.StringVar(&c.RecordsBackend, "records-backend", RecordsMongo, "record store: mongo|sqlite|memory")
	fs.StringVar(&c.MongoURI, "mongo-uri", "", "MongoDB connection string")
	fs.StringVar(&c.MongoDatabase, "mongo-database", "themehub", "MongoDB database name")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "themehub.db", "SQLite database file")

	fs.StringVar(&c.RootFolder, "root-folder", "theme_manager_Store", "top-level prefix holding all theme folders")
	fs.StringVar(&c.CurrentFolder, "current-folder", "current_theme", "reserved folder that holds the live theme")
	fs.StringVar(&c.PublicBaseURL, "public-base-url", "https://storage.googleapis.com", "base of public object URLs (<base>/<bucket>/<key>)")
	fs.DurationVar(&c.SwapTimeout, "swap-timeout", 5*time.Minute, "upper bound for a whole theme swap")
	fs.BoolVar(&c.AllowEmptyTheme, "allow-empty-theme", false, "allow swapping to a folder with no objects (empties the live theme)")

	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HS256 signing secret")
	fs.StringVar(&c.JWTSecretSSMParam, "jwt-secret-ssm-param", "", "SSM SecureString parameter holding the signing secret")
	fs.StringVar(&c.JWTSecretKMSBlob, "jwt-secret-kms-blob", "", "base64 KMS ciphertext of the signing secret")
	fs.DurationVar(&c.TokenTTL, "token-ttl", 7*24*time.Hour, "lifetime of issued tokens")
	fs.BoolVar(&c.AllowOpenBootstrap, "allow-open-bootstrap", false, "allow addSuperAdmin after a super admin already exists")
	fs.Float64Var(&c.AuthRateLimit, "auth-rate-limit", 1, "sustained auth requests per second per client ip")
	fs.IntVar(&c.AuthRateBurst, "auth-rate-burst", 10, "auth request burst per client ip")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := setFlags(fs)

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvKey maps a flag name to its environment variable.
func EnvKey(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		bad("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		bad("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	}
	if c.AdminPort == c.HTTPPort {
		bad("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.MaxUploadBytes < 1 {
		bad("MAX_UPLOAD_BYTES must be positive (got %d)", c.MaxUploadBytes)
	}
	if c.DrainPeriod < 0 {
		bad("DRAIN_PERIOD must not be negative (got %s)", c.DrainPeriod)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		bad("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		bad("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			bad("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			bad("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			bad("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			bad("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if err := checkHostPort(c.OTLPEndpoint); err != nil {
			bad("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}

	if err := ValidateStorage(c); err != nil {
		errs = append(errs, err)
	}

	secrets := 0
	for _, s := range []string{c.JWTSecret, c.JWTSecretSSMParam, c.JWTSecretKMSBlob} {
		if s != "" {
			secrets++
		}
	}
	if secrets != 1 {
		bad("exactly one of JWT_SECRET, JWT_SECRET_SSM_PARAM, JWT_SECRET_KMS_BLOB is required (got %d)", secrets)
	}
	if c.TokenTTL <= 0 {
		bad("TOKEN_TTL must be positive (got %s)", c.TokenTTL)
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst < 1 {
		bad("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive")
	}

	return errors.Join(errs...)
}

// ValidateStorage checks only the object store, record store and theme
// settings, which is all the operator CLI needs.
func ValidateStorage(c App) error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.StoreBackend {
	case StoreGCS, StoreS3, StoreMemory:
	default:
		bad("invalid STORE_BACKEND %q (gcs|s3|memory)", c.StoreBackend)
	}
	if c.StoreTimeout <= 0 {
		bad("STORE_TIMEOUT must be positive (got %s)", c.StoreTimeout)
	}
	if c.StoreConcurrency < 1 || c.StoreConcurrency > 256 {
		bad("STORE_CONCURRENCY must be 1..256 (got %d)", c.StoreConcurrency)
	}
	if c.StoreRetries < 0 || c.StoreRetries > 10 {
		bad("STORE_RETRIES must be 0..10 (got %d)", c.StoreRetries)
	}

	switch c.RecordsBackend {
	case RecordsMongo:
		if c.MongoURI == "" {
			bad("MONGO_URI required when RECORDS_BACKEND=mongo")
		}
		if c.MongoDatabase == "" {
			bad("MONGO_DATABASE required when RECORDS_BACKEND=mongo")
		}
	case RecordsSQLite:
		if c.SQLitePath == "" {
			bad("SQLITE_PATH required when RECORDS_BACKEND=sqlite")
		}
	case RecordsMemory:
	default:
		bad("invalid RECORDS_BACKEND %q (mongo|sqlite|memory)", c.RecordsBackend)
	}

	if c.RootFolder == "" || strings.Contains(c.RootFolder, "/") {
		bad("ROOT_FOLDER must be a single non-empty path segment (got %q)", c.RootFolder)
	}
	if c.CurrentFolder == "" || strings.Contains(c.CurrentFolder, "/") {
		bad("CURRENT_FOLDER must be a single non-empty path segment (got %q)", c.CurrentFolder)
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		bad("PUBLIC_BASE_URL must be a URL (got %q)", c.PublicBaseURL)
	}
	if c.SwapTimeout <= 0 {
		bad("SWAP_TIMEOUT must be positive (got %s)", c.SwapTimeout)
	}

	return errors.Join(errs...)
}

// Origins splits CORSOrigins into trimmed, non-empty entries.
func (c App) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// checkHostPort accepts host:port with a non-empty host and a numeric port.
func checkHostPort(v string) error {
	if strings.Contains(v, "://") {
		return errors.New("scheme not allowed")
	}
	host, port, err := net.SplitHostPort(v)
	if err != nil {
		return err
	}
	if host == "" {
		return errors.New("missing host")
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
