package core_test

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/core"
	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm/protocol/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════════════════════

// trackingBody 记录 Close 调用次数的字节源
type trackingBody struct {
	io.Reader
	closes atomic.Int32
}

func newBody(r io.Reader) *trackingBody {
	return &trackingBody{Reader: r}
}

func (b *trackingBody) Close() error {
	b.closes.Add(1)
	if c, ok := b.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *trackingBody) Closed() bool {
	return b.closes.Load() > 0
}

func collect(t *testing.T, s *core.Stream) ([]string, *llm.Response, error) {
	t.Helper()
	var fragments []string
	resp, err := s.Consume(func(f string) {
		fragments = append(fragments, f)
	})
	return fragments, resp, err
}

// ═══════════════════════════════════════════════════════════════════════════
// Stream 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestStream_EndToEnd(t *testing.T) {
	body := newBody(strings.NewReader(sampleStream))
	s := core.NewStream(body, openai.NewChunkHandler())

	fragments, resp, err := collect(t, s)

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, map[string]any{"energy_joules": 1.0}, resp.Energy)
	assert.True(t, resp.Terminated)
	assert.True(t, s.Terminated())
	assert.Equal(t, int32(1), body.closes.Load(), "body released exactly once")

	assert.Equal(t, map[string]any{
		"content": "Hello",
		"energy":  map[string]any{"energy_joules": 1.0},
	}, resp.JSON())
}

func TestStream_ByteAtATime(t *testing.T) {
	whole := core.NewStream(newBody(strings.NewReader(sampleStream)), openai.NewChunkHandler())
	wantFragments, want, err := collect(t, whole)
	require.NoError(t, err)

	oneByte := core.NewStream(
		newBody(iotest.OneByteReader(strings.NewReader(sampleStream))),
		openai.NewChunkHandler(),
	)
	gotFragments, got, err := collect(t, oneByte)
	require.NoError(t, err)

	assert.Equal(t, wantFragments, gotFragments)
	assert.Equal(t, want, got)
}

func TestStream_ImplicitTerminator(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
		": energy {\"energy_joules\": 3}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}"
	body := newBody(strings.NewReader(input))

	fragments, resp, err := collect(t, core.NewStream(body, openai.NewChunkHandler()))

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fragments)
	assert.Equal(t, "ab", resp.Content)
	assert.Equal(t, map[string]any{"energy_joules": 3.0}, resp.Energy)
	assert.False(t, resp.Terminated)
	assert.True(t, body.Closed())
}

func TestStream_MalformedChunk(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {not valid json\n" +
		"data: also broken\n" +
		"data: [DONE]\n"
	body := newBody(strings.NewReader(input))
	s := core.NewStream(body, openai.NewChunkHandler())

	require.True(t, s.Next())
	assert.Equal(t, "a", s.Text())
	assert.False(t, s.Next())

	err := s.Err()
	require.Error(t, err)
	assert.True(t, llm.IsMalformedChunk(err))

	resp, err2 := s.Response()
	assert.Nil(t, resp)
	assert.Same(t, err, err2, "exactly one error per stream")
	assert.True(t, body.Closed())
}

func TestStream_UnrecognizedLine(t *testing.T) {
	body := newBody(strings.NewReader("event: message\ndata: [DONE]\n"))

	_, err := core.NewStream(body, openai.NewChunkHandler()).Response()

	assert.True(t, llm.IsUnrecognizedLine(err))
}

func TestStream_TransportError(t *testing.T) {
	src := io.MultiReader(
		strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"),
		iotest.ErrReader(errors.New("connection reset by peer")),
	)
	body := newBody(src)

	fragments, resp, err := collect(t, core.NewStream(body, openai.NewChunkHandler()))

	assert.Equal(t, []string{"a"}, fragments)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, llm.IsTransportError(err))
	assert.True(t, body.Closed())
}

func TestStream_EmptyInput(t *testing.T) {
	body := newBody(strings.NewReader(""))
	s := core.NewStream(body, openai.NewChunkHandler())

	assert.False(t, s.Next())
	resp, err := s.Response()

	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	assert.Nil(t, resp.Energy)
	assert.False(t, resp.Terminated)
}

func TestStream_KeepAliveOnly(t *testing.T) {
	body := newBody(strings.NewReader(": keep-alive\n\n: keep-alive\n\ndata: [DONE]\n\n"))

	fragments, resp, err := collect(t, core.NewStream(body, openai.NewChunkHandler()))

	require.NoError(t, err)
	assert.Empty(t, fragments)
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Chunks)
	assert.True(t, resp.Terminated)
}

func TestStream_CloseBeforeCompletion(t *testing.T) {
	pr, pw := io.Pipe()
	body := newBody(pr)
	s := core.NewStream(body, openai.NewChunkHandler())

	go func() {
		_, _ = pw.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"))
	}()

	require.True(t, s.Next())
	assert.Equal(t, "a", s.Text())

	require.NoError(t, s.Close())
	assert.True(t, body.Closed())

	assert.False(t, s.Next())
	resp, err := s.Response()
	assert.Nil(t, resp)
	assert.True(t, llm.IsStreamError(err))

	// 重复关闭是安全的
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), body.closes.Load())
}

func TestStream_CloseUnblocksRead(t *testing.T) {
	pr, _ := io.Pipe()
	body := newBody(pr)
	s := core.NewStream(body, openai.NewChunkHandler())

	result := make(chan error, 1)
	go func() {
		_, err := s.Response()
		result <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-result:
		assert.True(t, llm.IsStreamError(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock the pending read")
	}
}

func TestStream_FragmentsEarlyBreak(t *testing.T) {
	body := newBody(strings.NewReader(sampleStream))
	s := core.NewStream(body, openai.NewChunkHandler())

	var got []string
	for f := range s.Fragments() {
		got = append(got, f)
		break
	}

	assert.Equal(t, []string{"Hel"}, got)
	assert.True(t, body.Closed())

	_, err := s.Response()
	assert.True(t, llm.IsStreamError(err))
}

func TestStream_ResponseAfterCompletionIsStable(t *testing.T) {
	s := core.NewStream(newBody(strings.NewReader(sampleStream)), openai.NewChunkHandler())

	first, err := s.Response()
	require.NoError(t, err)
	first.Content = "mutated"

	second, err := s.Response()
	require.NoError(t, err)
	assert.Equal(t, "Hello", second.Content)

	// 完成后关闭不影响结果
	require.NoError(t, s.Close())
	third, err := s.Response()
	require.NoError(t, err)
	assert.Equal(t, "Hello", third.Content)
}

func TestStream_WithReadSize(t *testing.T) {
	s := core.NewStream(
		newBody(strings.NewReader(sampleStream)),
		openai.NewChunkHandler(),
		core.WithReadSize(3),
	)

	resp, err := s.Response()

	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
}
