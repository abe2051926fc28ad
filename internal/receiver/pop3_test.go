package receiver

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePOP3Conn struct {
	authErr   error
	statErr   error
	messages  [][]byte
	retrErr   error
	retrieved []int
	quitCalls int
}

func (f *fakePOP3Conn) Auth(user, password string) error { return f.authErr }

func (f *fakePOP3Conn) Stat() (int, int, error) {
	if f.statErr != nil {
		return 0, 0, f.statErr
	}
	return len(f.messages), 0, nil
}

func (f *fakePOP3Conn) RetrRaw(msgID int) (*bytes.Buffer, error) {
	f.retrieved = append(f.retrieved, msgID)
	if f.retrErr != nil {
		return nil, f.retrErr
	}
	return bytes.NewBuffer(f.messages[msgID-1]), nil
}

func (f *fakePOP3Conn) Quit() error {
	f.quitCalls++
	return nil
}

func TestPOP3SessionRange(t *testing.T) {
	conn := &fakePOP3Conn{messages: [][]byte{[]byte("one"), []byte("two")}}
	s, err := newPOP3Session(conn, testAccount, discard())
	require.NoError(t, err)

	h, err := s.Highest()
	require.NoError(t, err)
	require.Equal(t, uint32(2), h)

	body, err := s.Fetch(2)
	require.NoError(t, err)
	require.Equal(t, "two", string(body))

	_, err = s.Fetch(0)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Fetch(3)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []int{2}, conn.retrieved)

	require.NoError(t, s.Close())
	require.Equal(t, 1, conn.quitCalls)
}

func TestPOP3SessionExisting(t *testing.T) {
	conn := &fakePOP3Conn{messages: [][]byte{[]byte("1"), []byte("2"), []byte("3"), []byte("4")}}
	s, err := newPOP3Session(conn, testAccount, discard())
	require.NoError(t, err)

	ids, err := s.Existing(0, 2)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, ids)

	ids, err = s.Existing(3, 100)
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 4}, ids)

	ids, err = s.Existing(5, 9)
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Empty(t, conn.retrieved)
}

func TestPOP3SessionFetchStatsLazily(t *testing.T) {
	conn := &fakePOP3Conn{messages: [][]byte{[]byte("one")}}
	s, err := newPOP3Session(conn, testAccount, discard())
	require.NoError(t, err)

	body, err := s.Fetch(1)
	require.NoError(t, err)
	require.Equal(t, "one", string(body))
}

func TestPOP3SessionErrors(t *testing.T) {
	conn := &fakePOP3Conn{authErr: errors.New("-ERR denied")}
	_, err := newPOP3Session(conn, testAccount, discard())
	require.ErrorIs(t, err, ErrAuth)
	require.Equal(t, 1, conn.quitCalls)

	conn = &fakePOP3Conn{statErr: errors.New("-ERR busy")}
	s, err := newPOP3Session(conn, testAccount, discard())
	require.NoError(t, err)
	_, err = s.Highest()
	require.ErrorIs(t, err, ErrSelect)

	conn = &fakePOP3Conn{messages: [][]byte{[]byte("one")}, retrErr: errors.New("-ERR gone")}
	s, err = newPOP3Session(conn, testAccount, discard())
	require.NoError(t, err)
	_, err = s.Fetch(1)
	require.ErrorIs(t, err, ErrFetch)
}
