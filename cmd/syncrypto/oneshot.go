package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/liqing/syncrypto/pkg/crypto"
)

// encryptOneFile encrypts a single file into a standalone container,
// independent of any folder sync, used by --encrypt-file.
func encryptOneFile(path, outPath string) error {
	password, err := resolvePassword("")
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "unable to stat input file")
	}
	if info.IsDir() {
		return errors.New("--encrypt-file requires a regular file, not a directory")
	}

	source, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "unable to open input file")
	}
	defer source.Close()

	if outPath == "" {
		outPath = path + ".encrypted"
	}
	destination, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "unable to create output file")
	}
	defer destination.Close()

	meta := &crypto.Metadata{
		Pathname: filepath.Base(path),
		ModTime:  uint32(info.ModTime().Unix()),
		Mode:     int32(info.Mode().Perm()),
	}
	return crypto.EncryptFD(destination, source, password, meta, true)
}

// decryptOneFile decrypts a single standalone container, independent of
// any folder sync, used by --decrypt-file. The recovered plaintext file's
// modification time and permissions are restored from the container's
// stored metadata.
func decryptOneFile(path, outPath string) error {
	password, err := resolvePassword("")
	if err != nil {
		return err
	}

	source, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "unable to open input file")
	}
	defer source.Close()

	if outPath == "" {
		outPath = filepath.Base(path)
	}
	destination, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "unable to create output file")
	}

	meta, err := crypto.DecryptFD(destination, source, password)
	if err != nil {
		destination.Close()
		return err
	}
	destination.Close()

	if meta.Mode != 0 {
		if err := os.Chmod(outPath, os.FileMode(meta.Mode)); err != nil {
			return errors.Wrap(err, "unable to restore file permissions")
		}
	}
	modTime := time.Unix(int64(meta.ModTime), 0)
	return os.Chtimes(outPath, modTime, modTime)
}
