package main

import "github.com/craftercms/engine-sub000/cmd"

func main() {
	cmd.Execute()
}
