package agent

import "strings"

// Item 是一次运行中产生的条目，只有本包内的类型实现它。
type Item interface {
	runItem()
}

// ToolCallItem 记录模型发起的一次工具调用。
type ToolCallItem struct {
	CallID    string
	Name      string
	Arguments string
}

// ToolOutputRaw 是工具输出的原始载荷。
type ToolOutputRaw struct {
	Output string
}

// ToolCallOutputItem 记录一次工具调用的输出。Output 为语义化输出，可能为空，此时使用 Raw.Output。
type ToolCallOutputItem struct {
	CallID string
	Output *string
	Raw    ToolOutputRaw
}

// Text 返回优先使用语义化字段的输出文本。
func (i ToolCallOutputItem) Text() string {
	if i.Output != nil {
		return *i.Output
	}
	return i.Raw.Output
}

// ContentPartType 区分消息内容片段。
type ContentPartType string

const (
	ContentOutputText ContentPartType = "output_text"
	ContentRefusal    ContentPartType = "refusal"
)

// ContentPart 是助手消息的一个内容片段。
type ContentPart struct {
	Type ContentPartType
	Text string
}

// MessageItem 是模型产生的一条助手消息。
type MessageItem struct {
	Parts []ContentPart
}

// Text 拼接所有文本片段。
func (i MessageItem) Text() string {
	var b strings.Builder
	for _, part := range i.Parts {
		if part.Type == ContentOutputText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func (ToolCallItem) runItem()       {}
func (ToolCallOutputItem) runItem() {}
func (MessageItem) runItem()        {}
