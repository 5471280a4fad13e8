package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respStub минимальный Redis: SET отвечает OK, остальные команды ошибкой
type respStub struct {
	listener net.Listener
	mu       sync.Mutex
	commands []string
}

func newRESPStub(t *testing.T) *respStub {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	stub := &respStub{listener: listener}
	go stub.serve()
	t.Cleanup(func() { listener.Close() })
	return stub
}

func (s *respStub) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *respStub) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	for {
		args, err := readRESPArray(reader)
		if err != nil {
			return
		}
		name := strings.ToLower(args[0])

		s.mu.Lock()
		s.commands = append(s.commands, name)
		s.mu.Unlock()

		reply := "-ERR release failed\r\n"
		if name == "set" {
			reply = "+OK\r\n"
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func (s *respStub) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func readRESPArray(reader *bufio.Reader) ([]string, error) {
	header, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(header, "*") {
		return nil, fmt.Errorf("unexpected header %q", header)
	}
	count, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		sizeLine, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeLine[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestSyncLock_InProcess(t *testing.T) {
	lock := NewSyncLock(nil, time.Minute, nil)
	ctx := context.Background()

	release, err := lock.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, lock.IsRunning(1))

	_, err = lock.TryAcquire(ctx, 1)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	other, err := lock.TryAcquire(ctx, 2)
	require.NoError(t, err)
	other()

	release()
	assert.False(t, lock.IsRunning(1))

	release, err = lock.TryAcquire(ctx, 1)
	require.NoError(t, err)
	release()
}

func TestSyncLock_ReleaseFailureIsLogged(t *testing.T) {
	stub := newRESPStub(t)
	client := redis.NewClient(&redis.Options{
		Addr:       stub.listener.Addr().String(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { client.Close() })

	var buf bytes.Buffer
	lock := NewSyncLock(client, time.Minute, log.New(&buf, "", 0))

	release, err := lock.TryAcquire(context.Background(), 7)
	require.NoError(t, err)
	release()

	assert.False(t, lock.IsRunning(7))
	assert.Contains(t, buf.String(), "Не удалось снять блокировку")
	assert.Contains(t, buf.String(), "release failed")
	assert.Contains(t, stub.seen(), "evalsha")
}
