package app

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// pollMsg fires every poll interval; the model drains the session queue on it.
type pollMsg time.Time

func pollCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// GeneralErrorMsg signals an error that is not tied to a session result.
type GeneralErrorMsg struct {
	Err error
}

func NewError(err error) GeneralErrorMsg {
	return GeneralErrorMsg{Err: err}
}

func (e GeneralErrorMsg) Error() string { return e.Err.Error() }

func (e GeneralErrorMsg) String() string { return fmt.Sprintf("GeneralError: %s", e.Err) }
