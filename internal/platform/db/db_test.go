package db

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenConn_SurfacesPingFailure exercises the ping step of bootstrap
// with a mocked connection, grounded on
// bharat-parihar-ARC-Hawk's sqlmock-backed repository tests generalized
// from database/sql to GORM's ConnPool injection point.
func TestOpenConn_SurfacesPingFailure(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectPing().WillReturnError(assert.AnError)

	_, err = OpenConn(conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping database")
	assert.NoError(t, mock.ExpectationsWereMet())
}
