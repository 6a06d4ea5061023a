package main

import "go-video-bot/cmd/video-bot/cmd"

func main() {
	cmd.Execute()
}
