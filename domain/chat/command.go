package chat

// Command is an intent issued by a connected client.
type Command interface {
	Kind() string
}

type SendCommand struct {
	Content   string
	ReplyToID *int64
}

func (SendCommand) Kind() string { return "send" }

type DeleteCommand struct {
	MessageID int64
}

func (DeleteCommand) Kind() string { return "delete" }

// EditCommand replaces the content of an existing message.
type EditCommand struct {
	MessageID int64
	Content   string
}

func (EditCommand) Kind() string { return "edit" }
