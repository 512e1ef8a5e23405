package main

import (
	"github.com/grailbio/base/grail"
	"v.io/x/lib/cmdline"
)

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-mergefastq",
		Short:    "Merge split FASTQ files by sample",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdPrepRename(),
			newCmdPrepSamplemap(),
			newCmdMerge(),
			newCmdEvalCounts(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
