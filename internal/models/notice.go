package models

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeAuth    NoticeKind = "auth"
)

// Notice is a dismissable message shown to the user.
type Notice struct {
	Kind NoticeKind
	Text string
}

// NoticeFor maps an error onto the notice the user should see.
func NoticeFor(err error, fallback string) Notice {
	switch {
	case IsAuth(err):
		return Notice{Kind: NoticeAuth, Text: "Please log in to continue"}
	case IsRetryable(err):
		return Notice{Kind: NoticeError, Text: fallback + ". Please try again"}
	}
	return Notice{Kind: NoticeError, Text: fallback}
}
