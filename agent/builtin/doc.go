// Package builtin provides the LLM-backed agents registered at startup.
//
// Each agent is a PromptAgent: it checks its required input fields, renders a
// text/template prompt, asks the configured llm.Client for a completion using the
// model preference carried in the request context, and decodes a JSON object reply
// into the payload when the model returns one.
package builtin
