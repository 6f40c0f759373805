package history

import "fmt"

// Tag wraps text with the name of whoever said it, the form other
// characters see it in.
func Tag(name, text string) string {
	return fmt.Sprintf("\n[%s]\n%s", name, text)
}

// Broadcaster mirrors one character's turn into the histories of the rest
// of the scene so every character keeps the shared context.
type Broadcaster struct {
	Own   *History
	Peers []*History
}

// Input records what the speaker heard. The tagged prompt goes to the
// speaker's own history and to every peer as a user message.
func (b Broadcaster) Input(speaker, prompt string) {
	msg := User(Tag(speaker, prompt))
	b.Own.Append(msg)
	for _, p := range b.Peers {
		p.Append(msg)
	}
}

// Reply records the speaker's answer: untagged as assistant in its own
// history, tagged with its display name as user everywhere else.
func (b Broadcaster) Reply(displayName, reply string) {
	b.Own.Append(Assistant(reply))
	shared := User(Tag(displayName, reply))
	for _, p := range b.Peers {
		p.Append(shared)
	}
}
