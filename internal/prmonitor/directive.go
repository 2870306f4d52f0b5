package prmonitor

import "encoding/json"

// Directive is the structured instruction returned by the Transition
// Engine and surfaced to the LLM through next_step. Exactly the envelope
// described in spec.md §6.
type Directive struct {
	Action       string          `json:"action"`
	Question     string          `json:"question,omitempty"`
	Choices      []string        `json:"choices,omitempty"`
	Task         string          `json:"task,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
	Message      string          `json:"message,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"`
}

// askUserInstruction is attached to every ask_user directive per the Tool
// Surface's composition order (spec.md §4.4 step 7): the LLM must present
// the question verbatim.
const askUserInstruction = "Present this question to the user verbatim, including the exact choices listed. Do not paraphrase or add options."

// executeInstruction is attached to every execute directive. Unlike
// ask_user, there is no question to relay verbatim: the LLM performs the
// named task itself, then reports back with whichever event matches its
// outcome (spec.md §6).
const executeInstruction = "Perform this task yourself, then call next_step with the event that reports its outcome (comment_addressed, investigation_complete, push_completed, or task_complete, as the task requires)."

// askUser builds an ask_user directive.
func askUser(question string, choices ...string) Directive {
	return Directive{
		Action:       ActionAskUser,
		Question:     question,
		Choices:      choices,
		Instructions: askUserInstruction,
	}
}

// execute builds an execute directive (task delegated to the LLM).
func execute(task string) Directive {
	return Directive{
		Action:       ActionExecute,
		Task:         task,
		Instructions: executeInstruction,
	}
}

// autoExecute builds an auto_execute directive (task performed locally).
func autoExecute(task string) Directive {
	return Directive{Action: ActionAutoExecute, Task: task}
}

// polling builds a polling directive.
func polling(message string) Directive {
	return Directive{Action: ActionPolling, Message: message}
}

// stopped builds a stop directive.
func stopped(message string) Directive {
	return Directive{Action: ActionStop, Message: message}
}

// merged builds a merged directive.
func merged(message string) Directive {
	return Directive{Action: ActionMerged, Message: message}
}

// withContext attaches an opaque JSON context payload to a directive,
// carrying the relevant entity (comment, failures, identifiers).
func withContext(d Directive, v any) Directive {
	raw, err := json.Marshal(v)
	if err != nil {
		return d
	}
	d.Context = raw
	return d
}
