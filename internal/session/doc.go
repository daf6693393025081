// Package session runs the request lifecycle of the displayed conversation.
//
// # States
//
// A Controller is either Idle or Streaming:
//
//	Idle --Submit--> Streaming --(body ends)--> Idle
//	Streaming --Abort/Switch/Reset--> Idle
//	Streaming --(transport failure)--> Idle
//
// Submit while Streaming returns ErrStreamInProgress and changes nothing, so a
// thread never has more than one stream in flight.
//
// # Streams
//
// Each Submit starts a goroutine that opens the stream, decodes it with a
// stream.Decoder and applies every event to the conversation store under the
// controller's lock. Lines the decoder drops are counted and logged at debug
// level. Every stream carries a generation number. Abort bumps
// the generation, so events from a superseded stream are dropped even if
// they were already read off the wire.
//
// The goroutine of a new stream waits until the previous stream's body is
// closed before opening its own connection. Close cancels every stream
// context, including those of completion hooks still running, and waits for
// all stream goroutines to exit.
//
// # Failures
//
// A stream that cannot be opened, or whose body fails mid-read, discards the
// partial reply, keeps the user's message, returns to Idle and sets
// NoticeConnection on the store. Error events from the backend are logged
// and shown as a notice without ending the stream.
package session
