// Package config loads the operational surface of spec.md §6: every
// [server]/[encoding]/[auth]/[rights]/[storage]/[logging]/[headers] key,
// read once at startup into an immutable *Config, grounded on the
// teacher's config.Load (internal/config/config.go): plain env vars with
// defaults, read exactly once. Extended with an optional --config FILE
// (INI-like, same shape the rights from_file reader already parses) and
// CLI flags that shadow env vars, per spec.md §6's CLI surface.
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	Hosts                 []string
	MaxConnections        int
	MaxContentLength      int64
	Timeout               time.Duration
	BasePath              string
	SSL                   bool
	Certificate           string
	Key                   string
	CertificateAuthority  string
	Protocol              string
	CipherSuite           string
}

type EncodingConfig struct {
	Request string
	Stock   string
}

type LDAPConfig struct {
	URL                string
	BindDN             string
	BindPassword       string
	UserBaseDN         string
	UserFilter         string
	DisplayNameAttr    string
	RequireTLS         bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

type JWTConfig struct {
	JWKSURL   string
	Issuer    string
	Audience  string
	KeysetTTL time.Duration
}

type AuthConfig struct {
	Type                        string
	HtpasswdFilename            string
	HtpasswdEncryption          string
	Delay                       time.Duration
	Realm                       string
	LCUsername                  bool
	UCUsername                  bool
	StripDomain                 bool
	URLDecodeUsername           bool
	CacheLogins                 bool
	CacheSuccessfulLoginsExpiry time.Duration
	CacheFailedLoginsExpiry     time.Duration
	RemoteUserEnvVar            string
	HeaderEnabled               bool
	LDAP                        LDAPConfig
	JWT                         JWTConfig
}

type RightsConfig struct {
	Type                      string
	File                      string
	PermitDeleteCollection    bool
	PermitOverwriteCollection bool
}

type StorageConfig struct {
	Type                         string
	FilesystemFolder             string
	FilesystemFsync              bool
	FilesystemCacheFolder        string
	UseCacheSubfolderForItem     bool
	UseCacheSubfolderForHistory  bool
	UseCacheSubfolderForSyncToken bool
	UseMtimeAndSizeForItemCache  bool
	FolderUmask                  string
	MaxSyncTokenAge              time.Duration
	MaxRecurrenceExpansion       int
	MaxFreeBusyOccurrences       int
	Hook                         string
	EnableCacheIndex             bool
}

type LoggingConfig struct {
	Level                     string
	MaskPasswords             bool
	StorageCacheActionOnDebug bool
	Backtrace                 bool
	RequestHeader             bool
	RequestContent            bool
	ResponseContent           bool
}

// Config is the immutable, fully-resolved configuration surface of
// spec.md §6.
type Config struct {
	Server   ServerConfig
	Encoding EncodingConfig
	Auth     AuthConfig
	Rights   RightsConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Headers  map[string]string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Default returns the built-in defaults of spec.md §6, matching the
// teacher's Load() shape of "one getenv call per field with a literal
// default".
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Hosts:            strings.Split(getenv("CALDAVD_SERVER_HOSTS", "0.0.0.0:5232"), ","),
			MaxConnections:   getenvInt("CALDAVD_SERVER_MAX_CONNECTIONS", 20),
			MaxContentLength: getenvInt64("CALDAVD_SERVER_MAX_CONTENT_LENGTH", 100*1024*1024),
			Timeout:          getenvDuration("CALDAVD_SERVER_TIMEOUT", 30*time.Second),
			BasePath:         getenv("CALDAVD_SERVER_BASE_PATH", "/dav"),
			SSL:              getenvBool("CALDAVD_SERVER_SSL", false),
			Certificate:      getenv("CALDAVD_SERVER_CERTIFICATE", ""),
			Key:              getenv("CALDAVD_SERVER_KEY", ""),
			CertificateAuthority: getenv("CALDAVD_SERVER_CERTIFICATE_AUTHORITY", ""),
			Protocol:         getenv("CALDAVD_SERVER_PROTOCOL", "TLSv1_2"),
			CipherSuite:      getenv("CALDAVD_SERVER_CIPHERSUITE", ""),
		},
		Encoding: EncodingConfig{
			Request: getenv("CALDAVD_ENCODING_REQUEST", "utf-8"),
			Stock:   getenv("CALDAVD_ENCODING_STOCK", "utf-8"),
		},
		Auth: AuthConfig{
			Type:                        getenv("CALDAVD_AUTH_TYPE", "none"),
			HtpasswdFilename:            getenv("CALDAVD_AUTH_HTPASSWD_FILENAME", ""),
			HtpasswdEncryption:          getenv("CALDAVD_AUTH_HTPASSWD_ENCRYPTION", "autodetect"),
			Delay:                       getenvDuration("CALDAVD_AUTH_DELAY", time.Second),
			Realm:                       getenv("CALDAVD_AUTH_REALM", "caldavd"),
			LCUsername:                  getenvBool("CALDAVD_AUTH_LC_USERNAME", false),
			UCUsername:                  getenvBool("CALDAVD_AUTH_UC_USERNAME", false),
			StripDomain:                 getenvBool("CALDAVD_AUTH_STRIP_DOMAIN", false),
			URLDecodeUsername:           getenvBool("CALDAVD_AUTH_URLDECODE_USERNAME", false),
			CacheLogins:                 getenvBool("CALDAVD_AUTH_CACHE_LOGINS", false),
			CacheSuccessfulLoginsExpiry: getenvDuration("CALDAVD_AUTH_CACHE_SUCCESSFUL_LOGINS_EXPIRY", 15*time.Minute),
			CacheFailedLoginsExpiry:     getenvDuration("CALDAVD_AUTH_CACHE_FAILED_LOGINS_EXPIRY", 90*time.Second),
			RemoteUserEnvVar:            getenv("CALDAVD_AUTH_REMOTE_USER_ENVVAR", "REMOTE_USER"),
			HeaderEnabled:               getenvBool("CALDAVD_AUTH_TRUST_X_REMOTE_USER", false),
			LDAP: LDAPConfig{
				URL:                getenv("CALDAVD_AUTH_LDAP_URL", ""),
				BindDN:             getenv("CALDAVD_AUTH_LDAP_BIND_DN", ""),
				BindPassword:       getenv("CALDAVD_AUTH_LDAP_BIND_PASSWORD", ""),
				UserBaseDN:         getenv("CALDAVD_AUTH_LDAP_USER_BASE_DN", ""),
				UserFilter:         getenv("CALDAVD_AUTH_LDAP_USER_FILTER", "(|(uid=%s)(mail=%s))"),
				DisplayNameAttr:    getenv("CALDAVD_AUTH_LDAP_DISPLAYNAME_ATTR", "cn"),
				RequireTLS:         getenvBool("CALDAVD_AUTH_LDAP_REQUIRE_TLS", true),
				InsecureSkipVerify: getenvBool("CALDAVD_AUTH_LDAP_INSECURE_SKIP_VERIFY", false),
				Timeout:            getenvDuration("CALDAVD_AUTH_LDAP_TIMEOUT", 5*time.Second),
			},
			JWT: JWTConfig{
				JWKSURL:   getenv("CALDAVD_AUTH_JWT_JWKS_URL", ""),
				Issuer:    getenv("CALDAVD_AUTH_JWT_ISSUER", ""),
				Audience:  getenv("CALDAVD_AUTH_JWT_AUDIENCE", ""),
				KeysetTTL: getenvDuration("CALDAVD_AUTH_JWT_KEYSET_TTL", 10*time.Minute),
			},
		},
		Rights: RightsConfig{
			Type:                      getenv("CALDAVD_RIGHTS_TYPE", "owner_only"),
			File:                      getenv("CALDAVD_RIGHTS_FILE", ""),
			PermitDeleteCollection:    getenvBool("CALDAVD_RIGHTS_PERMIT_DELETE_COLLECTION", true),
			PermitOverwriteCollection: getenvBool("CALDAVD_RIGHTS_PERMIT_OVERWRITE_COLLECTION", false),
		},
		Storage: StorageConfig{
			Type:                          getenv("CALDAVD_STORAGE_TYPE", "multifilesystem"),
			FilesystemFolder:              getenv("CALDAVD_STORAGE_FILESYSTEM_FOLDER", "/var/lib/caldavd/collections"),
			FilesystemFsync:               getenvBool("CALDAVD_STORAGE_FILESYSTEM_FSYNC", true),
			FilesystemCacheFolder:         getenv("CALDAVD_STORAGE_FILESYSTEM_CACHE_FOLDER", ""),
			UseCacheSubfolderForItem:      getenvBool("CALDAVD_STORAGE_USE_CACHE_SUBFOLDER_FOR_ITEM", true),
			UseCacheSubfolderForHistory:   getenvBool("CALDAVD_STORAGE_USE_CACHE_SUBFOLDER_FOR_HISTORY", true),
			UseCacheSubfolderForSyncToken: getenvBool("CALDAVD_STORAGE_USE_CACHE_SUBFOLDER_FOR_SYNCTOKEN", true),
			UseMtimeAndSizeForItemCache:   getenvBool("CALDAVD_STORAGE_USE_MTIME_AND_SIZE_FOR_ITEM_CACHE", true),
			FolderUmask:                   getenv("CALDAVD_STORAGE_FOLDER_UMASK", "022"),
			MaxSyncTokenAge:               getenvDuration("CALDAVD_STORAGE_MAX_SYNC_TOKEN_AGE", 30*24*time.Hour),
			MaxRecurrenceExpansion:        getenvInt("CALDAVD_STORAGE_MAX_RECURRENCE_EXPANSION", 10000),
			MaxFreeBusyOccurrences:        getenvInt("CALDAVD_STORAGE_MAX_FREEBUSY_OCCURRENCES", 10000),
			Hook:                          getenv("CALDAVD_STORAGE_HOOK", ""),
			EnableCacheIndex:              getenvBool("CALDAVD_STORAGE_ENABLE_CACHE_INDEX", false),
		},
		Logging: LoggingConfig{
			Level:                     getenv("CALDAVD_LOGGING_LEVEL", "info"),
			MaskPasswords:             getenvBool("CALDAVD_LOGGING_MASK_PASSWORDS", true),
			StorageCacheActionOnDebug: getenvBool("CALDAVD_LOGGING_STORAGE_CACHE_ACTION_ON_DEBUG", false),
			Backtrace:                 getenvBool("CALDAVD_LOGGING_BACKTRACE", false),
			RequestHeader:             getenvBool("CALDAVD_LOGGING_REQUEST_HEADER", false),
			RequestContent:            getenvBool("CALDAVD_LOGGING_REQUEST_CONTENT", false),
			ResponseContent:           getenvBool("CALDAVD_LOGGING_RESPONSE_CONTENT", false),
		},
		Headers: map[string]string{},
	}
}

// Load builds the default config, then overlays an optional --config file
// list (multiple paths separated by ':' or ';'; a leading '?' marks a path
// optional) and finally the CLI flag surface, per spec.md §6.
func Load(args []string) (*Config, error) {
	cfg := Default()

	var configPaths, flagOverrides = splitArgs(args)
	for _, p := range configPaths {
		optional := strings.HasPrefix(p, "?")
		p = strings.TrimPrefix(p, "?")
		if p == "" {
			continue
		}
		if err := applyINIFile(cfg, p); err != nil {
			if optional && os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: %s: %w", p, err)
		}
	}
	for key, val := range flagOverrides {
		if err := setByFlagKey(cfg, key, val); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// splitArgs extracts --config PATH[:PATH;...] occurrences and every
// --<section>-<key> VALUE pair from args, per spec.md §6's CLI surface.
// booleanSwitches never consume a following VALUE argument.
var booleanSwitches = map[string]bool{"verify-storage": true, "debug": true}

func splitArgs(args []string) (configPaths []string, flags map[string]string) {
	flags = map[string]string{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") {
			continue
		}
		name := strings.TrimPrefix(a, "--")
		var value string
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			value = name[eq+1:]
			name = name[:eq]
		} else if !booleanSwitches[name] && i+1 < len(args) {
			value = args[i+1]
			i++
		}
		switch {
		case name == "config":
			for _, p := range regexp.MustCompile(`[:;]`).Split(value, -1) {
				if p != "" {
					configPaths = append(configPaths, p)
				}
			}
		case booleanSwitches[name]:
			flags[name] = "true"
		default:
			flags[name] = value
		}
	}
	return configPaths, flags
}

// applyINIFile reads a "[section]\nkey = value" config file (same
// stdlib bufio+regexp technique as rights.parseFromFile; no ecosystem
// INI library appears anywhere in the retrieved corpus) and overlays it
// onto cfg by the same "--section-key" flag name used on the CLI.
func applyINIFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sectionRe := regexp.MustCompile(`^\[(.+)\]$`)
	kvRe := regexp.MustCompile(`^([A-Za-z0-9_-]+)\s*[:=]\s*(.*)$`)

	section := ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			section = m[1]
			continue
		}
		m := kvRe.FindStringSubmatch(line)
		if m == nil || section == "" {
			continue
		}
		if err := setByFlagKey(cfg, section+"-"+m[1], m[2]); err != nil {
			return err
		}
	}
	return sc.Err()
}

// setByFlagKey applies one "section-key" = value pair, the shape shared
// by both the --<section>-<key> CLI flags and the --config file of
// spec.md §6.
func setByFlagKey(cfg *Config, key, value string) error {
	switch strings.ToLower(key) {
	case "server-hosts":
		cfg.Server.Hosts = strings.Split(value, ",")
	case "server-max-connections":
		return setInt(&cfg.Server.MaxConnections, value)
	case "server-max-content-length":
		return setInt64(&cfg.Server.MaxContentLength, value)
	case "server-timeout":
		return setDuration(&cfg.Server.Timeout, value)
	case "server-base-path":
		cfg.Server.BasePath = value
	case "server-ssl":
		return setBool(&cfg.Server.SSL, value)
	case "server-certificate":
		cfg.Server.Certificate = value
	case "server-key":
		cfg.Server.Key = value
	case "server-certificate-authority":
		cfg.Server.CertificateAuthority = value
	case "server-protocol":
		cfg.Server.Protocol = value
	case "server-ciphersuite":
		cfg.Server.CipherSuite = value
	case "auth-type":
		cfg.Auth.Type = value
	case "auth-htpasswd-filename":
		cfg.Auth.HtpasswdFilename = value
	case "auth-htpasswd-encryption":
		cfg.Auth.HtpasswdEncryption = value
	case "auth-delay":
		return setDuration(&cfg.Auth.Delay, value)
	case "auth-realm":
		cfg.Auth.Realm = value
	case "auth-lc-username":
		return setBool(&cfg.Auth.LCUsername, value)
	case "auth-uc-username":
		return setBool(&cfg.Auth.UCUsername, value)
	case "auth-strip-domain":
		return setBool(&cfg.Auth.StripDomain, value)
	case "auth-urldecode-username":
		return setBool(&cfg.Auth.URLDecodeUsername, value)
	case "auth-cache-logins":
		return setBool(&cfg.Auth.CacheLogins, value)
	case "rights-type":
		cfg.Rights.Type = value
	case "rights-file":
		cfg.Rights.File = value
	case "rights-permit-delete-collection":
		return setBool(&cfg.Rights.PermitDeleteCollection, value)
	case "rights-permit-overwrite-collection":
		return setBool(&cfg.Rights.PermitOverwriteCollection, value)
	case "storage-type":
		cfg.Storage.Type = value
	case "storage-filesystem-folder":
		cfg.Storage.FilesystemFolder = value
	case "storage-filesystem-fsync":
		return setBool(&cfg.Storage.FilesystemFsync, value)
	case "storage-filesystem-cache-folder":
		cfg.Storage.FilesystemCacheFolder = value
	case "storage-max-sync-token-age":
		return setDuration(&cfg.Storage.MaxSyncTokenAge, value)
	case "storage-max-recurrence-expansion":
		return setInt(&cfg.Storage.MaxRecurrenceExpansion, value)
	case "storage-max-freebusy-occurrences":
		return setInt(&cfg.Storage.MaxFreeBusyOccurrences, value)
	case "storage-hook":
		cfg.Storage.Hook = value
	case "storage-enable-cache-index":
		return setBool(&cfg.Storage.EnableCacheIndex, value)
	case "logging-level":
		cfg.Logging.Level = value
	case "logging-mask-passwords":
		return setBool(&cfg.Logging.MaskPasswords, value)
	case "verify-storage", "debug", "export-storage":
		// consumed directly by cmd/caldavd's CLI dispatch, not a config field.
	default:
		if strings.HasPrefix(key, "headers-") {
			cfg.Headers[strings.TrimPrefix(key, "headers-")] = value
			return nil
		}
		return fmt.Errorf("config: unknown flag --%s", key)
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: invalid integer %q: %w", v, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, v string) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("config: invalid integer %q: %w", v, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: invalid boolean %q: %w", v, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", v, err)
	}
	*dst = d
	return nil
}
