package main

import (
	"songforge/cmd"
	"songforge/logger"
)

func main() {
	defer logger.Sync()
	cmd.Execute()
}
