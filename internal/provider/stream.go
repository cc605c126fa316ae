package provider

import (
	"bytes"
	"context"
	"io"
)

const doneSentinel = "[DONE]"

// deltaExtractor 解析一条 data: 负载。返回增量文本和是否为该方言的终止标记。
// 解析失败时返回 ("", false)，调用方按协议噪声静默跳过
type deltaExtractor func(payload []byte) (text string, done bool)

// consumeSSE 增量消费上游的 SSE 字节流：攒缓冲、按换行切分、逐行分类。
// 半行会跨多次 Read 保留在缓冲里，只有完整的行才会被分类。
// 终止标记一定以一个合成的 Done 事件收尾，标记之后残留在缓冲里的字节直接丢弃。
// 每次发送都侦听 ctx：消费方放弃后本协程必须退出，不能卡在通道发送上
func consumeSSE(ctx context.Context, body io.ReadCloser, extract deltaExtractor, events chan<- GenerationEvent) {
	defer body.Close()
	defer close(events)

	emit := func(ev GenerationEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := pending[:idx]
				pending = pending[idx+1:]
				text, terminal := classifyLine(line, extract)
				if terminal {
					emit(GenerationEvent{Type: EventDone})
					return
				}
				if text != "" {
					if !emit(GenerationEvent{Type: EventDelta, Text: text}) {
						return
					}
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				// 上游没发终止标记就关了连接，按正常完成处理
				emit(GenerationEvent{Type: EventDone})
			} else {
				emit(GenerationEvent{Type: EventError, Text: readErr.Error()})
			}
			return
		}
	}
}

// classifyLine 处理一条完整的行，返回增量文本和是否遇到终止标记。
// 非 data: 行（event: 行、注释、keep-alive 空行）一律跳过，不算错误
func classifyLine(line []byte, extract deltaExtractor) (string, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, []byte("data:")) {
		return "", false
	}
	payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if string(payload) == doneSentinel {
		return "", true
	}
	text, done := extract(payload)
	if done {
		return "", true
	}
	return text, false
}

// singleErrorStream 初始 HTTP 响应就是错误状态时，整个序列只有一个 Error 事件
func singleErrorStream(msg string) <-chan GenerationEvent {
	ch := make(chan GenerationEvent, 1)
	ch <- GenerationEvent{Type: EventError, Text: msg}
	close(ch)
	return ch
}
