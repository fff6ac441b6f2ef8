package main

import "github.com/lschandler81/Push365-sub000/cmd"

func main() {
	cmd.Execute()
}
