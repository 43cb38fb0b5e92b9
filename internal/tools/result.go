package tools

// Result is the unified outcome of a tool invocation, carrying both the
// model-facing text and the structured {success, result|error} payload
// the HTTP tool API returns.
type Result struct {
	ForLLM  string // text fed back into the model's tool-result turn
	ForUser any    // structured payload surfaced over the HTTP tool API
	IsError bool
	Err     string
}

func NewResult(forLLM string, forUser any) Result {
	return Result{ForLLM: forLLM, ForUser: forUser}
}

func ErrorResult(err string) Result {
	return Result{IsError: true, Err: err, ForLLM: "Error: " + err}
}

// Success reports whether the tool call should be reported as
// {success:true...} over the HTTP tool API.
func (r Result) Success() bool { return !r.IsError }
