package main

import "github.com/oshokin/update-service/cmd/update-service/cmd"

func main() {
	cmd.Execute()
}
