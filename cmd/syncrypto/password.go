package main

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/prompting"
)

// resolvePassword returns the password to use for an encrypted folder,
// either read from passwordFile or, if that's empty, prompted for
// interactively.
func resolvePassword(passwordFile string) (string, error) {
	if passwordFile != "" {
		return readPasswordFile(passwordFile)
	}
	return prompting.PromptPassword("Password: ")
}

// resolveNewPassword prompts twice for a new password and confirms that
// both entries match, used by --change-password.
func resolveNewPassword() (string, error) {
	first, err := prompting.PromptPassword("New password: ")
	if err != nil {
		return "", err
	}
	second, err := prompting.PromptPassword("Confirm new password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func readPasswordFile(path string) (string, error) {
	contents, err := readFileString(path)
	if err != nil {
		return "", errors.Wrap(err, "unable to read password file")
	}
	return strings.TrimRight(contents, "\r\n"), nil
}
