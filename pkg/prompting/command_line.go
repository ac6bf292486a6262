package prompting

import (
	"fmt"

	"github.com/mutagen-io/gopass"
	"github.com/pkg/errors"
)

// PromptCommandLineWithResponseMode performs command line prompting using
// the specified response mode.
func PromptCommandLineWithResponseMode(prompt string, mode ResponseMode) (string, error) {
	// Figure out which getter to use.
	var getter func() ([]byte, error)
	switch mode {
	case ResponseModeEcho:
		getter = gopass.GetPasswdEchoed
	case ResponseModeMasked:
		getter = gopass.GetPasswdMasked
	default:
		getter = gopass.GetPasswd
	}

	// Print the prompt.
	fmt.Print(prompt)

	// Get the result.
	result, err := getter()
	if err != nil {
		return "", errors.Wrap(err, "unable to read response")
	}

	// Success.
	return string(result), nil
}

// PromptPassword prompts for a password on the command line, masking
// keystrokes as they're typed.
func PromptPassword(prompt string) (string, error) {
	return PromptCommandLineWithResponseMode(prompt, ResponseModeMasked)
}
