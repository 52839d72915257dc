// Package assembly joins per-section clips into one final video artifact.
//
// The engine shells out to ffmpeg for three operations: a concat re-encode
// producing a single video+audio stream, black-frame detection over the
// assembled result, and a stream-copy trim that removes a defective leading
// span without re-encoding. Each call works inside its own directory under
// the staging root and removes it on every exit path; concurrent runs never
// share filesystem state.
package assembly
