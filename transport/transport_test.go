package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/gloomers/protocol"
)

func TestStdio_Recv(t *testing.T) {
	input := strings.Join([]string{
		`{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1"]}}`,
		``,
		`{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":2,"message":5}}`,
	}, "\n")
	s := NewStdio(strings.NewReader(input), io.Discard)
	ctx := context.Background()

	msg, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeInit, msg.Body.Type())

	msg, err = s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Broadcast{Message: 5}, msg.Body.Payload)

	_, err = s.Recv(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestStdio_RecvMalformed(t *testing.T) {
	s := NewStdio(strings.NewReader("{oops\n"), io.Discard)
	_, err := s.Recv(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrMalformed))
}

func TestStdio_RecvLongLine(t *testing.T) {
	values := make([]string, 0, 20000)
	for i := 0; i < 20000; i++ {
		values = append(values, "1234")
	}
	line := `{"src":"n2","dest":"n1","body":{"type":"read_ok","in_reply_to":1,"messages":[` + strings.Join(values, ",") + `]}}`
	require.Greater(t, len(line), 64*1024)

	s := NewStdio(strings.NewReader(line+"\n"), io.Discard)
	msg, err := s.Recv(context.Background())
	require.NoError(t, err)
	assert.Len(t, msg.Body.Payload.(protocol.ReadOk).Messages, 20000)
}

func TestStdio_SendOneLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdio(strings.NewReader(""), &buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Send(protocol.Request("n1", "n2", uint64(i), protocol.Broadcast{Message: uint64(i)}))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		msg, err := protocol.Decode([]byte(line))
		require.NoError(t, err, line)
		assert.Equal(t, protocol.TypeBroadcast, msg.Body.Type())
	}
}

func recvWithin(t *testing.T, ep *Endpoint, d time.Duration) (protocol.Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return ep.Recv(ctx)
}

func TestNetwork_Delivers(t *testing.T) {
	net := NewNetwork()
	a, err := net.Register("a")
	require.NoError(t, err)
	b, err := net.Register("b")
	require.NoError(t, err)

	_, err = net.Register("a")
	require.Error(t, err)

	require.NoError(t, a.Send(protocol.Request("a", "b", 1, protocol.Broadcast{Message: 3})))
	msg, err := recvWithin(t, b, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", msg.Src)
	assert.Equal(t, protocol.Broadcast{Message: 3}, msg.Body.Payload)
}

func TestNetwork_PartitionAndHeal(t *testing.T) {
	net := NewNetwork()
	a, _ := net.Register("a")
	b, _ := net.Register("b")
	c, _ := net.Register("c")

	net.Partition("b", "a")
	assert.False(t, net.Connected("a", "b"))
	assert.True(t, net.Connected("a", "c"))

	require.NoError(t, a.Send(protocol.Request("a", "b", 1, protocol.Read{})))
	_, err := recvWithin(t, b, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	net.Isolate("c")
	require.NoError(t, a.Send(protocol.Request("a", "c", 2, protocol.Read{})))
	_, err = recvWithin(t, c, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	net.Heal()
	require.NoError(t, a.Send(protocol.Request("a", "b", 3, protocol.Read{})))
	msg, err := recvWithin(t, b, time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.ID(3), msg.Body.MsgID)
}

func TestNetwork_UnknownDestinationDropped(t *testing.T) {
	net := NewNetwork()
	a, _ := net.Register("a")
	assert.NoError(t, a.Send(protocol.Request("a", "ghost", 1, protocol.Read{})))
}

func TestEndpoint_CloseEndsRecv(t *testing.T) {
	net := NewNetwork()
	a, _ := net.Register("a")
	b, _ := net.Register("b")

	require.NoError(t, a.Send(protocol.Request("a", "b", 1, protocol.Read{})))
	b.Close()

	_, err := recvWithin(t, b, time.Second)
	require.NoError(t, err, "queued message survives close")
	_, err = recvWithin(t, b, time.Second)
	assert.Equal(t, io.EOF, err)

	_, err = net.Register("b")
	assert.NoError(t, err, "id can be reused after close")
}
