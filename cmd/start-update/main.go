package main

import "github.com/oshokin/update-service/cmd/start-update/cmd"

func main() {
	cmd.Execute()
}
