package main

import "github.com/joshdurbin/garmin-wrapped/internal/cmd"

func main() {
	cmd.Execute()
}
