package types

import "errors"

// Error kinds for the engine. Recoverable kinds are logged and the affected
// unit skipped; fatal kinds abort the run with a non-zero exit status.
var (
	// ErrIO covers missing paths, permission failures and other host I/O
	// problems. Fatal.
	ErrIO = errors.New("i/o error")

	// ErrStorageFull is raised when the destination reports no space left.
	// Fatal, and reported distinctly from generic I/O failures.
	ErrStorageFull = errors.New("destination storage exhausted")

	// ErrFormat marks unsupported or malformed audio/tag content. Recoverable.
	ErrFormat = errors.New("unsupported or malformed audio content")

	// ErrTranscode marks a decode/encode failure; the source file is left
	// untouched. Recoverable.
	ErrTranscode = errors.New("transcode failed")

	// ErrAnalysis marks a loudness estimation failure; the track falls back
	// to the configured manual gain. Recoverable.
	ErrAnalysis = errors.New("loudness analysis failed")

	// ErrSynthesis marks a speech synthesis failure; the track or playlist
	// plays without a spoken name. Recoverable.
	ErrSynthesis = errors.New("speech synthesis failed")

	// ErrPlaylistParse marks a malformed manual playlist entry. Recoverable.
	ErrPlaylistParse = errors.New("playlist parse failed")

	// ErrSerialization marks a failure while writing a database file. Fatal;
	// the atomic rename discipline guarantees no partial file is left behind.
	ErrSerialization = errors.New("database serialization failed")
)

// IsFatal reports whether err belongs to one of the kinds that must abort
// the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIO) ||
		errors.Is(err, ErrStorageFull) ||
		errors.Is(err, ErrSerialization)
}
