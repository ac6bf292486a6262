package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/liqing/syncrypto/pkg/platform/terminal"
	"github.com/liqing/syncrypto/pkg/sync"
)

// printEncryptedTree loads the encrypted folder's file tree (without
// requiring a plaintext folder or performing a sync) and prints it.
func printEncryptedTree(engine *sync.Engine) error {
	tree, err := engine.LoadEncryptedTreeForInspection()
	if err != nil {
		return err
	}

	pathnames := tree.Pathnames()
	sort.Strings(pathnames)

	var totalSize uint64
	for _, pathname := range pathnames {
		entry := tree.Get(pathname)
		safePathname := terminal.NeutralizeControlCharacters(pathname)
		if entry.IsDir {
			fmt.Printf("%s/\n", safePathname)
			continue
		}
		totalSize += entry.Size
		fmt.Printf("%-10s %20s  %s\n",
			humanize.Bytes(entry.Size),
			time.Unix(entry.ModTime, 0).Format("2006-01-02 15:04:05"),
			safePathname,
		)
	}
	fmt.Println("Total file size:", humanize.Bytes(totalSize))
	return nil
}
