package app

// AppState represents the different views/modes of the application.
type AppState int

const (
	ShowMenu AppState = iota
	DownloadingFiles
	ProcessingFiles
	DetectingYears
	ShowError
	Exiting
)

// running reports whether s is a view backed by an active session.
func (s AppState) running() bool {
	return s == DownloadingFiles || s == ProcessingFiles || s == DetectingYears
}
