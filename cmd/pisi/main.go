// Copyright © 2018 One Concern

package main

import (
	"github.com/serpent-os/pisi/cmd/pisi/cmd"
)

func main() {
	cmd.Execute()
}
