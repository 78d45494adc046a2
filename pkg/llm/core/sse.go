package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/lwmacct/251019-go-pkg-neuralwatt/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 线路语法
// ═══════════════════════════════════════════════════════════════════════════

const (
	commentPrefix  = ":"
	dataPrefix     = "data:"
	sideChannelTag = "energy"
	doneToken      = "[DONE]"
)

// defaultReadSize Reader 单次读取的字节数
const defaultReadSize = 4096

// ═══════════════════════════════════════════════════════════════════════════
// Decoder - 推模式解码器
// ═══════════════════════════════════════════════════════════════════════════

// Decoder SSE 行/事件解码器
//
// 将任意切分的字节块转换为有序的 [llm.Event] 序列。
//
// 每行（以单个 '\n' 分隔，去除首尾空白后）按以下优先级分类：
//
//	""                      跳过（事件边界）
//	": energy " JSON        SideChannel 事件
//	":" 其他                 普通注释，跳过
//	"data: [DONE]"          终止事件，之后的输入全部作废
//	"data: " JSON           ContentDelta 事件
//	其他                     UnrecognizedLine 错误
//
// 解码失败后 Decoder 停止工作：错误会被保留并在后续调用中原样返回，
// 不会为后续的行产生第二个错误。
//
// Decoder 不是并发安全的，每个请求应使用独立的实例。
type Decoder struct {
	buf    []byte
	lineNo int
	done   bool
	err    error
}

// NewDecoder 创建解码器
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed 喂入一个字节块，返回其中所有完整行产生的事件
//
// 不完整的尾部行保留在缓冲区中，等待下一个字节块。
// 遇到终止符后返回的事件以 EventTypeDone 结尾，此后的所有输入被忽略。
// 出错时返回出错之前已解码的事件和错误。
func (d *Decoder) Feed(chunk []byte) ([]llm.Event, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.done {
		return nil, nil
	}

	d.buf = append(d.buf, chunk...)

	var events []llm.Event
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]

		event, ok, err := d.decodeLine(line)
		if err != nil {
			d.fail(err)
			return events, err
		}
		if !ok {
			continue
		}
		events = append(events, event)
		if event.IsDone() {
			d.finish()
			return events, nil
		}
	}
	return events, nil
}

// Flush 处理输入结束时缓冲区中剩余的不完整行
//
// 最后一行缺少换行符时仍按正常规则分类，不会被静默丢弃。
// 输入在终止符之前结束不是解码错误，由调用方决定如何处理。
func (d *Decoder) Flush() ([]llm.Event, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.done || len(d.buf) == 0 {
		return nil, nil
	}

	line := string(d.buf)
	d.buf = nil

	event, ok, err := d.decodeLine(line)
	if err != nil {
		d.fail(err)
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if event.IsDone() {
		d.finish()
	}
	return []llm.Event{event}, nil
}

// Done 是否已遇到终止符
func (d *Decoder) Done() bool {
	return d.done
}

// Err 第一个解码错误
func (d *Decoder) Err() error {
	return d.err
}

// Buffered 缓冲区中尚未成行的字节数
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) finish() {
	d.done = true
	d.buf = nil
}

func (d *Decoder) fail(err error) {
	d.err = err
	d.buf = nil
}

// decodeLine 分类单行，ok 为 false 表示该行被跳过
func (d *Decoder) decodeLine(raw string) (llm.Event, bool, error) {
	d.lineNo++
	line := strings.TrimSpace(raw)

	if line == "" {
		return llm.Event{}, false, nil
	}

	if comment, ok := strings.CutPrefix(line, commentPrefix); ok {
		payload, isSideChannel := cutSideChannel(comment)
		if !isSideChannel {
			return llm.Event{}, false, nil
		}
		data, err := decodeObject(payload)
		if err != nil {
			return llm.Event{}, false, llm.NewMalformedSideChannelError(line, d.lineNo, err)
		}
		return llm.EnergyEvent(data), true, nil
	}

	if value, ok := strings.CutPrefix(line, dataPrefix); ok {
		value = strings.TrimLeft(value, " \t")
		if value == doneToken {
			return llm.DoneEvent(), true, nil
		}
		data, err := decodeObject(value)
		if err != nil {
			return llm.Event{}, false, llm.NewMalformedChunkError(line, d.lineNo, err)
		}
		return llm.ChunkEvent(data), true, nil
	}

	return llm.Event{}, false, llm.NewUnrecognizedLineError(line, d.lineNo)
}

// cutSideChannel 识别 " energy <json>" 形式的注释内容
//
// 标签后必须紧跟空白，": energy-saver" 之类的注释按普通注释处理。
// ": energy" 后没有任何内容时返回空负载，由 JSON 解析报告错误。
func cutSideChannel(comment string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimLeft(comment, " \t"), sideChannelTag)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// decodeObject 解析 JSON 对象，非对象值视为解析失败
func decodeObject(s string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("expected JSON object, got null")
	}
	return data, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Reader - 拉模式解码器
// ═══════════════════════════════════════════════════════════════════════════

// Reader 从 io.Reader 拉取事件
//
// 按需读取底层字节源并交给 [Decoder] 处理，适合由调用方驱动的同步消费：
//
//	r := core.NewReader(resp.Body)
//	for {
//	    event, err := r.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(event)
//	}
//
// 字节源的读取错误包装为 [llm.TransportError]。
type Reader struct {
	src      io.Reader
	dec      *Decoder
	buf      []byte
	pending  []llm.Event
	err      error
	eof      bool
	finished bool
}

// NewReader 创建拉模式解码器
//
// readSize 为单次读取的字节数，省略或非正数时使用 4096。
func NewReader(src io.Reader, readSize ...int) *Reader {
	size := defaultReadSize
	if len(readSize) > 0 && readSize[0] > 0 {
		size = readSize[0]
	}
	return &Reader{
		src: src,
		dec: NewDecoder(),
		buf: make([]byte, size),
	}
}

// Next 返回下一个事件
//
// 终止事件之后，或输入在终止符之前结束时，返回 io.EOF。
// 解码错误与传输错误是粘性的，之后的调用返回同一个错误。
func (r *Reader) Next() (llm.Event, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return llm.Event{}, r.err
		}
		if r.finished {
			return llm.Event{}, io.EOF
		}
		r.fill()
	}

	event := r.pending[0]
	r.pending = r.pending[1:]
	return event, nil
}

// Terminated 是否已遇到终止符
func (r *Reader) Terminated() bool {
	return r.dec.Done()
}

// fill 读取一次字节源并解码
func (r *Reader) fill() {
	if r.eof {
		events, err := r.dec.Flush()
		r.pending = append(r.pending, events...)
		r.err = err
		r.finished = true
		return
	}

	n, readErr := r.src.Read(r.buf)
	if n > 0 {
		events, err := r.dec.Feed(r.buf[:n])
		r.pending = append(r.pending, events...)
		if err != nil {
			r.err = err
			return
		}
		if r.dec.Done() {
			r.finished = true
			return
		}
	}

	switch {
	case readErr == nil:
	case errors.Is(readErr, io.EOF):
		r.eof = true
	default:
		r.err = llm.NewTransportError("read stream", readErr)
	}
}
