package fastcgi

import (
	"bytes"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignedRequest(t *testing.T, c *conn, id uint16) *Request {
	t.Helper()

	ready, err := c.feed(concat(
		mkBegin(id, RoleResponder, flagKeepConn),
		mkTerminal(typeParams, id),
		mkTerminal(typeStdin, id),
	))
	require.NoError(t, err)
	require.Len(t, ready, 1)

	return ready[0]
}

func TestCompleteEmitsTerminalsAndEndRequest(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)
	req := assignedRequest(t, c, 1)

	require.True(t, req.Complete(7))

	recs := sink.records()
	require.Len(t, recs, 3)

	assert.Equal(t, typeStdout, recs[0].h.Type)
	assert.Zero(t, recs[0].h.ContentLength)

	assert.Equal(t, typeStderr, recs[1].h.Type)
	assert.Zero(t, recs[1].h.ContentLength)

	assert.Equal(t, typeEndRequest, recs[2].h.Type)
	assert.Equal(t, uint16(1), recs[2].h.ID)
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(recs[2].content[:4]))
	assert.Equal(t, statusRequestComplete, recs[2].content[4])

	assert.Empty(t, c.requests, "the entry returns to the interface")
}

func TestCompleteIdempotent(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)
	req := assignedRequest(t, c, 1)

	require.True(t, req.Complete(0))
	before := len(sink.records())

	assert.False(t, req.Complete(0))
	assert.False(t, req.RejectRole(0))
	assert.Len(t, sink.records(), before, "a repeated completion performs no I/O")
}

func TestWritesFailAfterCompletion(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)
	req := assignedRequest(t, c, 1)

	require.True(t, req.Complete(0))
	before := len(sink.records())

	assert.False(t, req.Write([]byte("late")))
	assert.False(t, req.WriteError([]byte("late")))
	assert.Len(t, sink.records(), before)
}

func TestRejectRole(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)
	req := assignedRequest(t, c, 1)

	require.True(t, req.RejectRole(1))

	recs := sink.records()
	require.Len(t, recs, 3)
	assert.Equal(t, typeEndRequest, recs[2].h.Type)
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(recs[2].content[:4]))
	assert.Equal(t, statusUnknownRole, recs[2].content[4])
}

func TestCloseAbandonsWithConfiguredStatus(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)
	req := assignedRequest(t, c, 1)

	req.Close()

	recs := sink.records()
	require.Len(t, recs, 3)
	assert.Equal(t, typeEndRequest, recs[2].h.Type)
	assert.Equal(t, testConfig.AppStatusOnAbort,
		int32(binary.BigEndian.Uint32(recs[2].content[:4])))

	assert.False(t, req.Complete(0), "close counts as completion")
}

func TestEmptyWriteEmitsNoRecord(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)
	req := assignedRequest(t, c, 1)

	assert.True(t, req.Write(nil))
	assert.True(t, req.WriteError(nil))
	assert.Empty(t, sink.records(), "an empty record would terminate the stream")
}

func TestWritePartitioning(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)
	req := assignedRequest(t, c, 1)

	payload := bytes.Repeat([]byte("x"), 100000)
	require.True(t, req.Write(payload))

	recs := sink.records()
	require.Len(t, recs, 2)

	var got []byte

	for _, rec := range recs {
		assert.Equal(t, typeStdout, rec.h.Type)
		assert.LessOrEqual(t, int(rec.h.ContentLength), maxWrite)
		assert.Zero(t, (headerLen+int(rec.h.ContentLength)+int(rec.h.PaddingLength))%8)

		got = append(got, rec.content...)
	}

	assert.Equal(t, payload, got)
}

func TestConcurrentHandlesInterleaveAtRecordBoundaries(t *testing.T) {
	_, c, sink := newSinkConn(testConfig)

	reqA := assignedRequest(t, c, 1)
	reqB := assignedRequest(t, c, 2)

	chunkA := bytes.Repeat([]byte("a"), 3000)
	chunkB := bytes.Repeat([]byte("b"), 3000)

	const rounds = 50

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()

		for i := 0; i < rounds; i++ {
			assert.True(t, reqA.Write(chunkA))
		}
	}()

	go func() {
		defer wg.Done()

		for i := 0; i < rounds; i++ {
			assert.True(t, reqB.Write(chunkB))
		}
	}()

	wg.Wait()

	require.True(t, reqA.Complete(0))
	require.True(t, reqB.Complete(0))

	var gotA, gotB []byte
	ends := 0

	for _, rec := range sink.records() {
		switch {
		case rec.h.Type == typeStdout && rec.h.ID == 1:
			gotA = append(gotA, rec.content...)

		case rec.h.Type == typeStdout && rec.h.ID == 2:
			gotB = append(gotB, rec.content...)

		case rec.h.Type == typeEndRequest:
			ends++
		}
	}

	assert.Equal(t, bytes.Repeat(chunkA, rounds), gotA)
	assert.Equal(t, bytes.Repeat(chunkB, rounds), gotB)
	assert.Equal(t, 2, ends)
}

func TestStreamRoundTripAcrossPartitionings(t *testing.T) {
	//any partitioning of a stream into records must reconstruct exactly
	payload := bytes.Repeat([]byte("0123456789abcdef"), 512)

	partitions := [][]int{
		{len(payload)},
		{1, len(payload) - 1},
		{100, 100, len(payload) - 200},
		{4096, 4096, len(payload) - 8192},
	}

	for _, parts := range partitions {
		_, c, _ := newSinkConn(testConfig)

		stream := concat(
			mkBegin(1, RoleResponder, flagKeepConn),
			mkTerminal(typeParams, 1),
		)

		rest := payload
		for _, n := range parts {
			stream = append(stream, mkRecord(typeStdin, 1, rest[:n])...)
			rest = rest[n:]
		}
		stream = append(stream, mkTerminal(typeStdin, 1)...)

		ready, err := c.feed(stream)
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, payload, ready[0].Stdin())
	}
}
