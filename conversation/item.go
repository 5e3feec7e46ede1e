package conversation

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Kind string

const (
	KindText               Kind = "text"
	KindFunctionCall       Kind = "function_call"
	KindFunctionCallOutput Kind = "function_call_output"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) rank() int {
	switch s {
	case StatusCompleted:
		return 1
	case StatusCancelled:
		return 2
	default:
		return 0
	}
}

// ToolCall carries a function invocation requested by the model.
type ToolCall struct {
	Name      string `json:"name"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments"`
}

// File references the playable rendition of an item's audio, synthesized
// once when the item completes.
type File struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Item is one turn, or fragment of a turn, of the conversation.
type Item struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Role       Role      `json:"role,omitempty"`
	Status     Status    `json:"status"`
	Text       string    `json:"text,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Audio      []int16   `json:"audio,omitempty"`
	Tool       *ToolCall `json:"tool,omitempty"`
	Output     string    `json:"output,omitempty"`
	File       *File     `json:"file,omitempty"`
}

// advance moves the status forward. Backward transitions are ignored, so a
// late in_progress snapshot can never undo a completed or cancelled item.
func (it *Item) advance(to Status) bool {
	if to.rank() <= it.Status.rank() {
		return false
	}
	it.Status = to
	return true
}

func (it *Item) clone() Item {
	out := *it
	if it.Audio != nil {
		out.Audio = append([]int16(nil), it.Audio...)
	}
	if it.Tool != nil {
		t := *it.Tool
		out.Tool = &t
	}
	if it.File != nil {
		f := *it.File
		out.File = &f
	}
	return out
}
