package agent

// StreamEvent 是流式运行产生的事件。事件集合是封闭的，只有本包内的类型实现它。
type StreamEvent interface {
	streamEvent()
}

// AgentUpdatedEvent 表示当前执行的智能体发生变化。
type AgentUpdatedEvent struct {
	Agent *Agent
}

// ToolCalledEvent 表示模型发起了工具调用。
type ToolCalledEvent struct {
	Item ToolCallItem
}

// ToolOutputEvent 表示工具返回了输出。
type ToolOutputEvent struct {
	Item ToolCallOutputItem
}

// MessageOutputEvent 表示模型输出了一条消息。
type MessageOutputEvent struct {
	Item MessageItem
}

func (AgentUpdatedEvent) streamEvent()  {}
func (ToolCalledEvent) streamEvent()    {}
func (ToolOutputEvent) streamEvent()    {}
func (MessageOutputEvent) streamEvent() {}
