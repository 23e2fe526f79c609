// Package agent builds executable agents from declared metadata.
//
// A Descriptor names the model provider, the tools, and whether the agent
// keeps session memory or consults a vector store. Factory.Build resolves
// the model, wraps every tool in an execution envelope, and assembles the
// prompt from ordered parts:
//
//	system, [chat_history], input, [context], agent_scratchpad
//
// The bracketed parts exist only when memory or retrieval is enabled.
//
// Agent.Invoke runs the reasoning loop: the model is called with the
// rendered prompt, requested tool calls run in parallel through their
// envelopes, and their results are appended to the scratchpad until the
// model answers without calling a tool or MaxIterations is reached.
package agent
