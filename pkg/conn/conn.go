package conn

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// Option defines connection options. Driver defaults to sqlite, which only
// needs Path.
type Option struct {
	Driver     string            `yaml:"driver" json:"driver"`
	Path       string            `yaml:"path" json:"path"`
	Host       string            `yaml:"host" json:"host"`
	Port       int               `yaml:"port" json:"port"`
	User       string            `yaml:"user" json:"user"`
	Password   string            `yaml:"password" json:"password"`
	Database   string            `yaml:"database" json:"database"`
	SSLMode    string            `yaml:"sslMode" json:"sslMode"`
	Params     map[string]string `yaml:"params" json:"params"`
	ConnString string            `yaml:"connString" json:"connString"`
	Config     *gorm.Config      `yaml:"-" json:"-"`
}

// Client wraps a database connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// New opens a client from the provided options.
func New(option Option) (*Client, error) {
	dialector, err := option.dialector()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, errors.Wrapf(exception.ErrIO, "open %s, err: %+v", option.driver(), err)
	}

	return &Client{opt: option, db: db}, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) driver() string {
	if opt.Driver == "" {
		return DriverSQLite
	}
	return opt.Driver
}

func (opt Option) dialector() (gorm.Dialector, error) {
	switch opt.driver() {
	case DriverSQLite:
		if opt.Path == "" {
			return nil, errors.Wrap(exception.ErrConfig, "sqlite path is empty")
		}
		if opt.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(opt.Path), 0o755); err != nil {
				return nil, errors.Wrapf(exception.ErrIO, "create %s, err: %+v", filepath.Dir(opt.Path), err)
			}
		}
		return sqlite.Open(opt.Path), nil
	case DriverPostgres:
		dsn, err := opt.dsn()
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	default:
		return nil, errors.Wrapf(exception.ErrConfig, "unknown driver %q", opt.Driver)
	}
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	if port < 0 || port > 65535 {
		return "", errors.Wrapf(exception.ErrConfig, "postgres port %d out of range", port)
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
