package main

import "github.com/ValentinKolb/xio/cmd"

func main() {
	cmd.Execute()
}
