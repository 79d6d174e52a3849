package llm

import "context"

// FakeClient is a scriptable Client used by tests of callers that
// depend on llm.Client, so they don't need network access.
type FakeClient struct {
	Response string
	Err      error
	Calls    []struct{ System, User string }
}

// SendMessage records the call and returns the scripted response/err.
func (f *FakeClient) SendMessage(_ context.Context, systemPrompt, userMessage string) (string, error) {
	f.Calls = append(f.Calls, struct{ System, User string }{systemPrompt, userMessage})
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}
