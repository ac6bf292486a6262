// Command syncrypto keeps a plaintext directory tree and a password
// encrypted directory tree synchronized.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/liqing/syncrypto/cmd"
	"github.com/liqing/syncrypto/pkg/buildinfo"
	"github.com/liqing/syncrypto/pkg/crypto"
	"github.com/liqing/syncrypto/pkg/filesystem"
	"github.com/liqing/syncrypto/pkg/logging"
	"github.com/liqing/syncrypto/pkg/sync"
)

// errSilentExit is returned by rootMain when it has already produced the
// output it needs (a version string or usage text) and wants the process to
// exit non-zero without exitCode printing a spurious "Error:" line for it.
var errSilentExit = errors.New("silent exit")

func rootMain(command *cobra.Command, arguments []string) error {
	if rootConfiguration.version {
		fmt.Println(buildinfo.Version)
		return errSilentExit
	}

	if rootConfiguration.debug {
		logging.RootLogger = logging.NewRootLogger(logging.LevelDebug)
	}

	var encryptedFolder, plaintextFolder string
	if len(arguments) > 0 {
		normalized, err := filesystem.Normalize(arguments[0])
		if err != nil {
			return errors.Wrap(err, "unable to normalize encrypted folder path")
		}
		encryptedFolder = normalized
	}
	if len(arguments) > 1 {
		normalized, err := filesystem.Normalize(arguments[1])
		if err != nil {
			return errors.Wrap(err, "unable to normalize plaintext folder path")
		}
		plaintextFolder = normalized
	}

	// The file encrypt/decrypt operations are one-shot conversions and
	// don't need a password-encrypted folder pairing at all.
	if rootConfiguration.encryptFile != "" {
		return encryptOneFile(rootConfiguration.encryptFile, rootConfiguration.outFile)
	}
	if rootConfiguration.decryptFile != "" {
		return decryptOneFile(rootConfiguration.decryptFile, rootConfiguration.outFile)
	}

	if encryptedFolder == "" {
		command.Help()
		return errSilentExit
	}

	password, err := resolvePassword(rootConfiguration.passwordFile)
	if err != nil {
		return err
	}

	if rootConfiguration.changePassword {
		engine, err := sync.NewEngine(sync.Options{
			Password:      password,
			EncryptedRoot: encryptedFolder,
		})
		if err != nil {
			return err
		}
		newPassword, err := resolveNewPassword()
		if err != nil {
			return err
		}
		return engine.ChangePassword(newPassword)
	}

	ruleSet, err := buildRuleSet(rootConfiguration.rules)
	if err != nil {
		return err
	}

	engine, err := sync.NewEngine(sync.Options{
		Password:      password,
		EncryptedRoot: encryptedFolder,
		PlainRoot:     plaintextFolder,
		RuleSet:       ruleSet,
		RuleFilePath:  rootConfiguration.ruleFile,
	})
	if err != nil {
		return err
	}

	if rootConfiguration.printEncryptedTree {
		return printEncryptedTree(engine)
	}

	if plaintextFolder == "" {
		return errors.New("a plaintext folder is required to sync")
	}

	if rootConfiguration.interval > 0 {
		return syncLoop(engine, rootConfiguration.interval)
	}
	return engine.Sync()
}

var rootCommand = &cobra.Command{
	Use:   "syncrypto [encrypted-folder] [plaintext-folder]",
	Short: "syncrypto keeps a plaintext folder and a password encrypted folder in sync",
	Args:  cobra.MaximumNArgs(2),
	RunE:  rootMain,
}

var rootConfiguration struct {
	// passwordFile, when set, supplies the password instead of prompting
	// for it interactively.
	passwordFile string
	// changePassword requests re-encrypting the encrypted folder under a
	// new password instead of syncing.
	changePassword bool
	// printEncryptedTree requests printing the encrypted folder's file
	// tree instead of syncing.
	printEncryptedTree bool
	// decryptFile and encryptFile request one-shot file conversions
	// instead of a folder sync.
	decryptFile string
	encryptFile string
	// outFile overrides the destination path for decryptFile/encryptFile.
	outFile string
	// interval, if positive, syncs repeatedly every interval seconds
	// instead of running once.
	interval int
	// ruleFile overrides the default rule file location.
	ruleFile string
	// rules supplies additional include/exclude rules on the command
	// line; they are evaluated before the rule file's rules.
	rules []string
	debug bool

	help    bool
	version bool
}

func init() {
	flags := rootCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVarP(&rootConfiguration.version, "version", "V", false, "Display the version")
	flags.StringVar(&rootConfiguration.passwordFile, "password-file", "", "Use the password in the file instead of getting it from interactive input")
	flags.BoolVar(&rootConfiguration.changePassword, "change-password", false, "Change the password of an encrypted folder")
	flags.BoolVar(&rootConfiguration.printEncryptedTree, "print-encrypted-tree", false, "Print the file tree in encrypted folder")
	flags.StringVar(&rootConfiguration.decryptFile, "decrypt-file", "", "Decrypt a file, storing the result in the current directory unless --out-file is given")
	flags.StringVar(&rootConfiguration.encryptFile, "encrypt-file", "", "Encrypt a file, storing the result in the same directory unless --out-file is given")
	flags.StringVar(&rootConfiguration.outFile, "out-file", "", "Specify the output path when encrypting/decrypting a single file")
	flags.IntVar(&rootConfiguration.interval, "interval", 0, "Sync the folders every interval seconds instead of running once")
	flags.StringVar(&rootConfiguration.ruleFile, "rule-file", "", "Specify the rule file, default is [plaintext folder]/.syncrypto/rules")
	flags.StringArrayVar(&rootConfiguration.rules, "rule", nil, "Add an include or exclude rule")
	flags.BoolVar(&rootConfiguration.debug, "debug", false, "Debug mode")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""
}

func main() {
	err := rootCommand.Execute()
	os.Exit(exitCode(err))
}

// exitCode maps an error returned from the root command into the process
// exit code it should produce.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errSilentExit) {
		return 1
	}

	var invalidFolder *sync.InvalidFolderError
	if errors.As(err, &invalidFolder) {
		cmd.Error(err)
		return 4
	}

	var decryptErr *crypto.DecryptError
	if errors.As(err, &decryptErr) {
		cmd.Error(err)
		return 3
	}

	cmd.Error(err)
	return 1
}
