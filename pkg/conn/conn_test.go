package conn

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
)

func TestDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  Option
		want string
	}{
		{
			desc: "defaults",
			opt:  Option{},
			want: "postgres://localhost:5432?sslmode=disable",
		},
		{
			desc: "full",
			opt:  Option{Host: "db", Port: 6543, User: "u", Password: "p", Database: "market", SSLMode: "require"},
			want: "postgres://u:p@db:6543/market?sslmode=require",
		},
		{
			desc: "params",
			opt:  Option{User: "u", Params: map[string]string{"application_name": "godzilla", "": "skip"}},
			want: "postgres://u@localhost:5432?application_name=godzilla&sslmode=disable",
		},
		{
			desc: "conn string wins",
			opt:  Option{Host: "db", ConnString: "postgres://x"},
			want: "postgres://x",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := tc.opt.dsn()
			if err != nil {
				t.Fatalf("dsn: %+v", err)
			}
			if got != tc.want {
				t.Fatalf("dsn %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDialectorChecksOptions(t *testing.T) {
	_, err := Option{Driver: "mysql"}.dialector()
	require.True(t, errors.Is(err, exception.ErrConfig))
	_, err = Option{}.dialector()
	require.True(t, errors.Is(err, exception.ErrConfig))
	_, err = Option{Driver: DriverPostgres, Port: 70000}.dialector()
	require.True(t, errors.Is(err, exception.ErrConfig))
}

func TestOpenSQLite(t *testing.T) {
	c, err := New(Option{Path: filepath.Join(t.TempDir(), "db", "market.db")})
	require.NoError(t, err)
	require.NotNil(t, c.DB())
	require.NoError(t, c.DB().Exec("SELECT 1").Error)
	require.NoError(t, c.Close())

	var nilClient *Client
	require.Nil(t, nilClient.DB())
	require.NoError(t, nilClient.Close())
}
