package main

import "github.com/oshokin/update-packager/cmd/update-packager/cmd"

func main() {
	cmd.Execute()
}
