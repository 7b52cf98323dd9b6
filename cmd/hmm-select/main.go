package main

import (
	basecmd "github.com/signrec/hmmselect/cmd"
	"github.com/signrec/hmmselect/selector/cmd"
)

func main() {
	basecmd.Run(&cmd.Cmd{}, "hmm-select", "Choose the number of hidden states of per-category HMMs")
}
