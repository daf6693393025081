// Package stream decodes the chat stream returned by POST /chat/stream.
//
// The body is newline-delimited. Only lines of the exact form
//
//	data: <json>
//
// are significant; everything else, including blank keep-alive lines, is
// skipped. The JSON carries a "type" discriminator:
//
//	{"type":"content","content":"He"}      incremental assistant text
//	{"type":"tool_start","tool":"search"}  a tool invocation began
//	{"type":"tool_end","tool":"search"}    that invocation finished
//	{"type":"error","content":"..."}       non-fatal error notice
//
// Payloads that are not JSON, carry an unknown type, or lack their field are
// dropped without interrupting the stream. Events come out in source order no
// matter how the bytes were chunked.
package stream
