package main

import "github.com/nfrund/relaychat/cmd/relaychat-cli/cmd"

func main() {
	cmd.Execute()
}
