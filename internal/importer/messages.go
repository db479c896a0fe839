package importer

// messages.go maps pipeline errors to the single human-readable status
// message each terminal outcome must produce.
//
// Codes let users quote something short when asking for help:
//
//	IMP001 - another import is running
//	IMP002 - download failed
//	IMP003 - unsupported file format
//	IMP004 - protected or corrupted archive
//	IMP005 - record store failure
//	IMP006 - import cancelled or timed out
//	IMP099 - unclassified failure

import (
	"context"
	"errors"
	"fmt"

	"github.com/seekdata/seekbot/internal/acquire"
)

// UserMessage is a terminal status message suitable for chat delivery.
type UserMessage struct {
	Code    string
	Message string
	Action  string
}

// String renders the message as one chat line.
func (m UserMessage) String() string {
	if m.Action == "" {
		return fmt.Sprintf("%s (%s)", m.Message, m.Code)
	}
	return fmt.Sprintf("%s %s (%s)", m.Message, m.Action, m.Code)
}

// Describe maps an import error to its user message.
func Describe(err error) UserMessage {
	var (
		acqErr   *acquire.Error
		storeErr *StoreError
	)

	switch {
	case errors.Is(err, ErrImportInProgress):
		return UserMessage{
			Code:    "IMP001",
			Message: "An import is already running.",
			Action:  "Wait for it to finish, then try again.",
		}
	case errors.As(err, &acqErr):
		return UserMessage{
			Code:    "IMP002",
			Message: fmt.Sprintf("Could not download the file: %v.", acqErr.Err),
			Action:  "Check the link and try again.",
		}
	case errors.Is(err, ErrUnsupportedArchive):
		return UserMessage{
			Code:    "IMP003",
			Message: "That file is not a zip, rar, or 7z archive.",
			Action:  "Check the file and upload a supported archive.",
		}
	case errors.Is(err, ErrProtectedArchive):
		return UserMessage{
			Code:    "IMP004",
			Message: "The archive is password-protected or corrupted.",
			Action:  "Upload an unprotected copy instead of retrying this one.",
		}
	case errors.As(err, &storeErr):
		return UserMessage{
			Code:    "IMP005",
			Message: "The record store rejected the import.",
			Action:  "Previously loaded data is unaffected; try again.",
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return UserMessage{
			Code:    "IMP006",
			Message: "The import was cancelled or timed out.",
			Action:  "Try again with a smaller file or a faster link.",
		}
	default:
		return UserMessage{
			Code:    "IMP099",
			Message: fmt.Sprintf("Import failed: %v.", err),
		}
	}
}

// DescribeSuccess renders the one success message for a finished import.
func DescribeSuccess(s *Summary) string {
	msg := fmt.Sprintf("Import complete: %d rows loaded from %d tabular file(s) (%s archive, %d file(s) extracted).",
		s.Rows, s.FilesParsed, s.Format, s.ArchiveFiles)
	if s.FilesSkipped > 0 {
		msg += fmt.Sprintf(" %d file(s) could not be parsed and were skipped.", s.FilesSkipped)
	}
	return msg
}
