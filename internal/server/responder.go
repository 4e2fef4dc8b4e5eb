package server

import "context"

// EchoPrefix is prepended to every text answered by Echo.
const EchoPrefix = "You said: "

// Responder produces the bot's answer to a chat message.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, text string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Echo answers with the received text.
var Echo = ResponderFunc(func(_ context.Context, text string) (string, error) {
	return EchoPrefix + text, nil
})
