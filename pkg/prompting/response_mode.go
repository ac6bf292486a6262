package prompting

// ResponseMode encodes how a prompt response should be displayed.
type ResponseMode uint8

const (
	// ResponseModeSecret indicates that a prompt response shouldn't be
	// echoed at all.
	ResponseModeSecret ResponseMode = iota
	// ResponseModeMasked indicates that a prompt response should be masked
	// with placeholder characters as it's typed.
	ResponseModeMasked
	// ResponseModeEcho indicates that a prompt response should be echoed
	// verbatim.
	ResponseModeEcho
)
