package queries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	q, err := Lookup("simple_select")
	require.NoError(t, err)

	sql, err := q.Payload("pgx", "postgres")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id from sa_tbl_1", sql)

	_, err = Lookup("drop_everything")
	assert.ErrorIs(t, err, ErrUnknownQuery)
}

func TestPayload_Unsupported(t *testing.T) {
	q, err := Lookup("join_select")
	require.NoError(t, err)

	_, err = q.Payload("redis", "redis")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = q.Payload("cassandra", "cassandra")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPayload_DriverOverride(t *testing.T) {
	q := Query{Name: "q", Payloads: map[string]string{"postgres": "a", "stdlib": "b"}}

	p, err := q.Payload("stdlib", "postgres")
	require.NoError(t, err)
	assert.Equal(t, "b", p)

	p, err = q.Payload("pgx", "postgres")
	require.NoError(t, err)
	assert.Equal(t, "a", p)
}

func TestTexts(t *testing.T) {
	texts, err := Texts(Names())
	require.NoError(t, err)
	assert.Len(t, texts, len(Names()))
	assert.Equal(t, []string{"simple_select", "join_select", "simple_insert"}, Names())
}
