package main

import "github.com/zinrai/wan-ip-provider/cmd"

func main() {
	cmd.Execute()
}
