package main

import (
	"k8s.io/klog/v2/klogr"

	"github.com/namix-io/reconciler/cmd/reconciler/commands"
	"github.com/namix-io/reconciler/pkg/utils/errors"
)

func main() {
	log := klogr.New()
	errors.CheckError(commands.NewRootCommand(log).Execute(), log)
}
