// Package codec defines the collaborators the decoder drives: a container
// demuxer producing packets and per-stream decoders turning packets into
// frames.
//
// Decoders follow a send/receive protocol. SendPacket feeds one packet, or
// nil to start draining. ReceiveFrame returns one frame, [ErrAgain] when
// more input is needed, or io.EOF once a drain has completed.
//
// Implementations are looked up through an explicit [Registry]; nothing in
// this module registers itself globally. Subpackages provide raw Y4M
// video, WAV/PCM audio and an MPEG-TS demuxer.
package codec
