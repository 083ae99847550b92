package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	GeodataCSV  string
	Debug       bool
}

// ParseFlags builds the configuration from command line flags, with a .env
// file or the process environment supplying defaults.
func ParseFlags() (cfg Config, err error) {
	_ = godotenv.Load() // a missing .env file is fine

	var host string
	flag.StringVar(&host, "host", envString("OPINA_HOST", "0.0.0.0"), "listen host name")
	var port uint
	flag.UintVar(&port, "port", envUint("OPINA_PORT", 8080), "listen port number")
	flag.StringVar(&cfg.DBUrl, "db-url", envString("OPINA_DB", "opina.sqlite"), "path to SQLite3 DB file")
	flag.StringVar(&cfg.TokenSecret, "token-secret", envString("OPINA_TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", envUint("OPINA_TOKEN_TTL", 3600), "staff token TTL in seconds")
	flag.StringVar(&cfg.GeodataCSV, "geodata", "", "import IBGE states/cities from CSV file and exit")
	flag.BoolVar(&cfg.Debug, "debug", envString("OPINA_DEBUG", "") != "", "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret (or OPINA_TOKEN_SECRET)")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint) uint {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint(n)
		}
	}
	return fallback
}
