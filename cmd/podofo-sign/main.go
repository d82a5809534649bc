package main

import "github.com/CrackerCat/podofo/cli"

func main() {
	cli.Execute()
}
